package service

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// StatusFunc reports the state served on /status. It must be safe to call
// from any goroutine.
type StatusFunc func() any

type HealthzServer struct {
	ctx    context.Context
	server *http.Server
	status StatusFunc
	log    log.Logger
}

// NewHealthzServer creates a server answering /healthz and, when status is
// set, /status.
func NewHealthzServer(lgr log.Logger, status StatusFunc) *HealthzServer {
	if lgr == nil {
		lgr = log.Root()
	}
	return &HealthzServer{status: status, log: lgr}
}

// Handler returns the routes of the server.
func (h *HealthzServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Handle).Methods(http.MethodGet)
	if h.status != nil {
		r.HandleFunc("/status", h.HandleStatus).Methods(http.MethodGet)
	}
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(r)
}

// Start serves on addr until Shutdown.
func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return h.Serve(ctx, ln)
}

// Serve serves on ln until Shutdown.
func (h *HealthzServer) Serve(ctx context.Context, ln net.Listener) error {
	h.server = &http.Server{
		Handler: h.Handler(),
		Addr:    ln.Addr().String(),
	}
	h.ctx = ctx
	return h.server.Serve(ln)
}

func (h *HealthzServer) Shutdown() error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(h.ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

func (h *HealthzServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.status()); err != nil {
		h.log.Error("failed to encode status", "err", err)
	}
}
