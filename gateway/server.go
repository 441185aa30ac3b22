package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
)

// Server exposes the gateway's named operations over HTTP: one POST route
// per invocation, JSON in, JSON out, faults as structured error payloads.
type Server struct {
	gateway *Gateway
	addr    string
}

func NewServer(gateway *Gateway, addr string) (*Server, error) {
	if gateway == nil {
		return nil, errors.New("gateway is required")
	}
	return &Server{gateway: gateway, addr: addr}, nil
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/tools", s.handleCatalog).Methods(http.MethodGet)
	r.HandleFunc("/tools/{name}", s.handleInvoke).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("tool gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var args map[string]any
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		writeFault(w, contractx.NewFault(contractx.KindValidation, "invalid request body: %v", err))
		return
	}

	result := s.gateway.Execute(r.Context(), contractx.ToolRequest{Tool: name, Args: args})
	if result.Error != nil {
		writeFault(w, result.Error)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": Catalog()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeFault(w http.ResponseWriter, fault *contractx.Fault) {
	writeJSON(w, statusForKind(fault.Kind), map[string]any{"error": fault})
}

func statusForKind(kind contractx.Kind) int {
	switch kind {
	case contractx.KindNotFound:
		return http.StatusNotFound
	case contractx.KindValidation:
		return http.StatusBadRequest
	case contractx.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}
