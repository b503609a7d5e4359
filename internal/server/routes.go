package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/bece/internal/protocol/schema"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type commandView struct {
	Name   string   `json:"name"`
	ID     uint16   `json:"id"`
	Kind   string   `json:"kind"`
	Extras []string `json:"extras,omitempty"`
}

func viewOf(d schema.Description) commandView {
	v := commandView{Name: d.Name, ID: d.ID, Kind: d.Kind.String()}
	for _, e := range d.Extras {
		v.Extras = append(v.Extras, e.String())
	}
	return v
}

func (a *Admin) RegisterRoutes() {
	a.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		st := a.src.Status()
		status := "ok"
		if !st.Connected {
			status = "disconnected"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    status,
			"uptime":    time.Since(a.appeared).String(),
			"component": "bece-node",
			"node":      st,
		})
	})

	a.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	a.router.Get("/commands", func(w http.ResponseWriter, r *http.Request) {
		descs := a.src.Commands()
		out := make([]commandView, 0, len(descs))
		for _, d := range descs {
			out = append(out, viewOf(d))
		}
		writeJSON(w, http.StatusOK, map[string]any{"commands": out})
	})

	a.router.Get("/commands/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 16)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid command id"})
			return
		}
		for _, d := range a.src.Commands() {
			if d.ID == uint16(id) {
				writeJSON(w, http.StatusOK, viewOf(d))
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "command not found"})
	})

	a.router.Get("/resends", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"resends": a.src.Resends()})
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("server.writeJSON encode failed")
	}
}
