package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// UDPMirror sends framed packets as datagrams. It never reads; the
// controller learns the node's UDP port from an ESTABLISH_UDP message.
type UDPMirror struct {
	addr    string
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

func NewUDPMirror(addr string, timeout time.Duration) *UDPMirror {
	return &UDPMirror{addr: addr, timeout: timeout}
}

func (u *UDPMirror) Connected() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.conn != nil
}

func (u *UDPMirror) Connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: u.timeout}
	conn, err := dialer.DialContext(ctx, "udp", u.addr)
	if err != nil {
		return fmt.Errorf("transport: udp dial %s: %w", u.addr, err)
	}
	u.mu.Lock()
	if u.conn != nil {
		_ = u.conn.Close()
	}
	u.conn = conn
	u.mu.Unlock()
	log.Info().Str("addr", u.addr).Msg("transport.UDPMirror.Connect ok")
	return nil
}

// LocalPort is the source port datagrams leave from, or 0 before Connect.
func (u *UDPMirror) LocalPort() uint16 {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return 0
	}
	if a, ok := u.conn.LocalAddr().(*net.UDPAddr); ok {
		return uint16(a.Port)
	}
	return 0
}

// Write sends p as one datagram.
func (u *UDPMirror) Write(p []byte) (int, error) {
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	if conn == nil {
		return 0, ErrNotConnected
	}
	return conn.Write(p)
}

func (u *UDPMirror) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	return err
}
