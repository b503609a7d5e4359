// Package server is the node's admin HTTP surface: health, Prometheus
// metrics, the command table and outstanding resend requests.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/bece/internal/observability"
	"github.com/danmuck/bece/internal/protocol/schema"
	"github.com/danmuck/bece/internal/protocol/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Status is the node state reported on /health.
type Status struct {
	Device          string    `json:"device"`
	FirmwareVersion string    `json:"firmware_version"`
	Connected       bool      `json:"connected"`
	UDP             bool      `json:"udp"`
	NextPacketID    uint32    `json:"next_packet_id"`
	Started         time.Time `json:"started"`
}

// Source is what the admin surface reads. Implementations must be safe to
// call from HTTP goroutines while the poll loop runs.
type Source interface {
	Status() Status
	Commands() []schema.Description
	Resends() []session.PendingResend
}

type Admin struct {
	Node     string
	src      Source
	appeared time.Time
	router   chi.Router
}

func New(node string, src Source) *Admin {
	a := &Admin{Node: node, src: src, appeared: time.Now()}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observability.RequestLogger(observability.ComponentLogger(node, "admin")))
	r.Use(observability.RequestMetricsMiddleware(node))
	a.router = r
	a.RegisterRoutes()
	return a
}

func (a *Admin) HTTPRouter() http.Handler {
	return a.router
}

// Serve runs the admin listener on addr until ctx ends.
func (a *Admin) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(addr))
	if err != nil {
		return err
	}
	return a.ServeListener(ctx, ln)
}

func (a *Admin) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("node", a.Node).Str("addr", ln.Addr().String()).Msg("server.Admin listening")
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
