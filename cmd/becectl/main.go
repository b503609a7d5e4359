package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/danmuck/bece/internal/controller"
	"github.com/danmuck/bece/internal/logging"
	"github.com/danmuck/bece/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	logging.ConfigureRuntime()
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "becectl: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "becectl",
		Short:         "Controller side of the BECE node protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(listenCmd())
	return root
}

type listenOptions struct {
	addr    string
	udpAddr string
	invoke  int
	args    []string
	quiet   bool
}

func listenCmd() *cobra.Command {
	def := controller.DefaultConfig()
	opts := listenOptions{addr: def.ListenAddr, invoke: -1}
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Accept nodes, print what they send, and optionally invoke a command",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return listen(ctx, cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", opts.addr, "TCP listen address")
	cmd.Flags().StringVar(&opts.udpAddr, "udp", "", "UDP listen address for mirrored packets (disabled when empty)")
	cmd.Flags().IntVar(&opts.invoke, "invoke", -1, "command id to invoke on each node after it connects")
	cmd.Flags().StringArrayVar(&opts.args, "arg", nil, "argument for --invoke as <type>:<value>, repeatable")
	cmd.Flags().BoolVar(&opts.quiet, "quiet", false, "skip the name and description requests on connect")
	return cmd
}

func listen(ctx context.Context, out io.Writer, opts listenOptions) error {
	if opts.invoke > 0xFFFF {
		return fmt.Errorf("--invoke %d out of range", opts.invoke)
	}
	vals, err := parseValues(opts.args)
	if err != nil {
		return err
	}

	p := &printer{out: out}
	c := controller.New(controller.Config{ListenAddr: opts.addr}, controller.HandlerFuncs{
		Session: func(s *controller.Session) {
			p.printf("%s connected\n", s.RemoteAddr())
			if !opts.quiet {
				if _, err := s.RequestName(); err != nil {
					p.printf("%s request name: %v\n", s.RemoteAddr(), err)
				}
				if _, err := s.RequestCommands(); err != nil {
					p.printf("%s request commands: %v\n", s.RemoteAddr(), err)
				}
			}
			if opts.invoke >= 0 {
				id, err := s.Invoke(uint16(opts.invoke), vals...)
				if err != nil {
					p.printf("%s invoke %d: %v\n", s.RemoteAddr(), opts.invoke, err)
					return
				}
				p.printf("%s invoked %d as packet %d\n", s.RemoteAddr(), opts.invoke, id)
			}
		},
		Message: func(s *controller.Session, m controller.Message) {
			p.message(who(s), m)
		},
	})

	ln, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return err
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("becectl listening")

	udpErr := make(chan error, 1)
	if opts.udpAddr != "" {
		pc, err := net.ListenPacket("udp", opts.udpAddr)
		if err != nil {
			_ = ln.Close()
			return err
		}
		go func() {
			udpErr <- c.ServeUDP(ctx, pc, func(addr net.Addr, m controller.Message) {
				p.message("udp "+addr.String(), m)
			})
		}()
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- c.Serve(ctx, ln) }()

	select {
	case err := <-serveErr:
		return err
	case err := <-udpErr:
		if err != nil {
			return err
		}
		return <-serveErr
	}
}

func who(s *controller.Session) string {
	if name := s.Name(); name != "" {
		return name
	}
	return s.RemoteAddr()
}

type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) printf(format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, a...)
}

func (p *printer) message(from string, m controller.Message) {
	switch m.Header.Type {
	case protocol.MsgLog:
		p.printf("%s log: %s\n", from, m.Text)
	case protocol.MsgSendName:
		p.printf("%s name: %s\n", from, m.Text)
	case protocol.MsgSendCommand:
		d := m.Description
		p.printf("%s command: id=%d name=%q kind=%s extras=%v\n", from, d.ID, d.Name, d.Kind, d.Extras)
	case protocol.MsgResend:
		p.printf("%s resend: packet %d\n", from, m.ResendID)
	case protocol.MsgEstablishUDP:
		p.printf("%s udp: port %d\n", from, m.UDPPort)
	default:
		p.printf("%s message %d: %v\n", from, uint16(m.Header.Type), m.Args)
	}
}
