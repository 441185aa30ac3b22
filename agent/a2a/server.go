// Package a2a is the agent-to-agent protocol surface: every agent publishes
// a capability manifest at a well-known path and accepts task submissions,
// status polls, and cancellations over the same small HTTP contract. Peers
// discover what an agent can do from its card, never from configuration.
package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
	taskx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/task"
)

// AgentCardPath is the discovery path every agent serves its manifest on.
const AgentCardPath = "/.well-known/agent-card"

const defaultProcessTimeout = 60 * time.Second

// Processor runs one accepted task to a resting state. Executors and the
// router both satisfy this.
type Processor interface {
	Process(ctx context.Context, t *taskx.Task)
}

// SubmitRequest is the body of POST /tasks. TaskID resumes an existing
// input-required task; when empty a fresh task is created.
type SubmitRequest struct {
	TaskID  string `json:"task_id,omitempty"`
	Message string `json:"message"`
}

// ServerOption customizes Server.
type ServerOption func(*Server)

// WithProcessTimeout bounds how long one submission may work before it is
// failed with a timeout fault.
func WithProcessTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.processTimeout = d
		}
	}
}

// Server hosts one agent's protocol surface. Submissions are processed
// synchronously; cancellation reaches in-flight work through a per-task
// cancel registry.
type Server struct {
	card      contractx.AgentCard
	store     taskx.Store
	processor Processor
	addr      string

	processTimeout time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewServer(card contractx.AgentCard, store taskx.Store, processor Processor, addr string, opts ...ServerOption) (*Server, error) {
	if strings.TrimSpace(card.Name) == "" {
		return nil, errors.New("agent card needs a name")
	}
	if store == nil {
		return nil, errors.New("task store is required")
	}
	if processor == nil {
		return nil, errors.New("processor is required")
	}

	s := &Server{
		card:           card,
		store:          store,
		processor:      processor,
		addr:           addr,
		processTimeout: defaultProcessTimeout,
		cancels:        make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(AgentCardPath, s.handleCard).Methods(http.MethodGet)
	r.HandleFunc("/tasks", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
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
		log.Info().Str("agent", s.card.Name).Str("addr", s.addr).Msg("agent listening")
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

func (s *Server) handleCard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.card)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFault(w, contractx.NewFault(contractx.KindValidation, "invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeFault(w, contractx.NewFault(contractx.KindValidation, "message must not be empty"))
		return
	}

	t, fault := s.admit(r.Context(), req)
	if fault != nil {
		writeFault(w, fault)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.processTimeout)
	s.track(t.ID, cancel)
	defer s.untrack(t.ID, cancel)

	s.processor.Process(ctx, t)
	writeJSON(w, http.StatusOK, t)
}

// admit either creates a task or reopens an input-required one, and returns
// it ready for processing. Callers may supply their own task id; an unknown
// id creates the task under that id, which lets a delegating agent address
// sub-tasks it has not heard back about yet.
func (s *Server) admit(ctx context.Context, req SubmitRequest) (*taskx.Task, *contractx.Fault) {
	if req.TaskID != "" {
		t, err := s.store.Get(ctx, req.TaskID)
		switch {
		case err == nil:
			return s.reopen(ctx, t, req.Message)
		case errors.Is(err, taskx.ErrTaskNotFound):
			// fall through to create under the supplied id
		default:
			return nil, contractx.NewFault(contractx.KindInternal, "load task: %v", err)
		}
	}

	t := taskx.New(req.TaskID, contractx.UserMessage(req.Message))
	if err := s.store.Create(ctx, t); err != nil {
		return nil, contractx.NewFault(contractx.KindInternal, "store task: %v", err)
	}
	return t, nil
}

func (s *Server) reopen(ctx context.Context, t *taskx.Task, message string) (*taskx.Task, *contractx.Fault) {
	if t.Status != taskx.StatusInputRequired {
		return nil, contractx.NewFault(contractx.KindValidation,
			"task %s is %s; only input-required tasks accept follow-up messages", t.ID, t.Status)
	}
	if err := t.AppendMessage(contractx.UserMessage(message)); err != nil {
		return nil, contractx.FaultFrom(err)
	}
	if err := s.store.Update(ctx, t); err != nil {
		return nil, contractx.NewFault(contractx.KindInternal, "store task: %v", err)
	}
	return t, nil
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, taskx.ErrTaskNotFound) {
			writeFault(w, contractx.NewFault(contractx.KindNotFound, "task %s not found", id))
			return
		}
		writeFault(w, contractx.NewFault(contractx.KindInternal, "load task: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// In-flight work is canceled through its context; the processor records
	// the canceled status itself.
	if cancel := s.lookup(id); cancel != nil {
		cancel()
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(taskx.StatusCanceled)})
		return
	}

	t, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, taskx.ErrTaskNotFound) {
			writeFault(w, contractx.NewFault(contractx.KindNotFound, "task %s not found", id))
			return
		}
		writeFault(w, contractx.NewFault(contractx.KindInternal, "load task: %v", err))
		return
	}
	if err := t.Cancel(); err != nil {
		writeFault(w, contractx.NewFault(contractx.KindValidation, "cancel task %s: %v", id, err))
		return
	}
	if err := s.store.Update(r.Context(), t); err != nil {
		writeFault(w, contractx.NewFault(contractx.KindInternal, "store task: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "agent": s.card.Name})
}

func (s *Server) track(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels[id] = cancel
}

func (s *Server) untrack(id string, cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancels, id)
}

func (s *Server) lookup(id string) context.CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels[id]
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
