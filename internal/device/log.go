package device

import (
	"context"
	"time"

	"github.com/danmuck/bece/internal/protocol"
	"github.com/rs/zerolog"
)

// LogSink receives human readable log lines.
type LogSink interface {
	Log(msg string)
}

type LogFunc func(msg string)

func (f LogFunc) Log(msg string) { f(msg) }

// ZerologSink writes lines to a zerolog logger.
type ZerologSink struct {
	Logger zerolog.Logger
}

func (s ZerologSink) Log(msg string) {
	s.Logger.Info().Str("line", msg).Msg("device.log")
}

// RemoteLog mirrors each line to the controller as a LOG packet and to the
// local logger. Send failures are logged locally only, so logging never
// recurses into itself.
type RemoteLog struct {
	link    *Link
	local   zerolog.Logger
	timeout time.Duration
}

func NewRemoteLog(link *Link, local zerolog.Logger, timeout time.Duration) *RemoteLog {
	return &RemoteLog{link: link, local: local, timeout: timeout}
}

func (r *RemoteLog) Log(msg string) {
	r.local.Info().Str("line", msg).Msg("device.remote_log")
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if _, err := r.link.SendTCP(ctx, protocol.MsgLog, []byte(msg), 1); err != nil {
		r.local.Warn().Err(err).Msg("device.RemoteLog send failed")
	}
}
