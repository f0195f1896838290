// Package adminapi is daxd's read-only HTTP diagnostics surface: process
// health, Prometheus metrics, and a JSON tag listing for operators, grounded
// on the teacher's gorilla/mux + gorilla/handlers server setup in
// server.go/routes.go but stripped of authentication, templates, and the
// GraphQL API surface entirely, since this port exists for inspection, not
// control. It carries no write endpoints and binds to localhost by default.
package adminapi

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opendax/daxd/internal/tagstore"
	"github.com/opendax/daxd/pkg/daxlog"
)

// Server is the admin HTTP listener.
type Server struct {
	http     http.Server
	listener net.Listener
}

// New builds the admin server, wiring /healthz, /metrics, and /debug/tags
// against store and the given Prometheus registry.
func New(addr string, reg *prometheus.Registry, store *tagstore.Store, startedAt time.Time) (*Server, error) {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "not found", http.StatusNotFound)
	})

	r.HandleFunc("/healthz", handleHealthz(startedAt)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/debug/tags", handleDebugTags(store)).Methods(http.MethodGet)
	r.HandleFunc("/debug/tags/{name}", handleDebugTag(store)).Methods(http.MethodGet)

	logged := handlers.CustomLoggingHandler(daxlog.InfoWriter, r, func(w io.Writer, params handlers.LogFormatterParams) {
		daxlog.Finfof(w, "%s %s (%d, %dB)", params.Request.Method, params.URL.RequestURI(), params.StatusCode, params.Size)
	})

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &Server{
		http: http.Server{
			Handler:      logged,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		listener: listener,
	}, nil
}

// Addr returns the bound address, useful when addr was given as ":0".
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Serve blocks, serving requests until Shutdown is called.
func (s *Server) Serve() error {
	daxlog.Infof("admin: listening at %s", s.Addr())
	err := s.http.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func handleHealthz(startedAt time.Time) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, map[string]any{
			"status": "ok",
			"uptime": time.Since(startedAt).String(),
		})
	}
}

type tagView struct {
	Index uint32 `json:"index"`
	Name  string `json:"name"`
	Type  uint32 `json:"type"`
	Count uint32 `json:"count"`
	Attr  uint16 `json:"attr"`
}

func handleDebugTags(store *tagstore.Store) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		tags := store.List()
		out := make([]tagView, 0, len(tags))
		for _, t := range tags {
			out = append(out, tagView{
				Index: t.Index,
				Name:  t.Name,
				Type:  uint32(t.Type),
				Count: t.Count,
				Attr:  uint16(t.Attr),
			})
		}
		writeJSON(rw, out)
	}
}

func handleDebugTag(store *tagstore.Store) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		t, err := store.GetByName(name)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(rw, tagView{
			Index: t.Index,
			Name:  t.Name,
			Type:  uint32(t.Type),
			Count: t.Count,
			Attr:  uint16(t.Attr),
		})
	}
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(rw)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
