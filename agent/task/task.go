package task

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
)

type Status string

const (
	StatusSubmitted     Status = "submitted"
	StatusWorking       Status = "working"
	StatusInputRequired Status = "input-required"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCanceled      Status = "canceled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusSubmitted, StatusWorking, StatusInputRequired,
		StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

var (
	ErrTerminal      = errors.New("task is in a terminal state")
	ErrBadTransition = errors.New("illegal task status transition")
)

// Task is the unit of work exchanged between a caller and an agent: an
// immutable correlation id plus mutable status, conversation, and result.
// A Task is owned exclusively by the executor processing it; everyone else
// sees snapshots served from the task store.
type Task struct {
	ID        string             `json:"id"`
	Status    Status             `json:"status"`
	Messages  []contractx.Message `json:"messages"`
	Result    string             `json:"result,omitempty"`
	Fault     *contractx.Fault   `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// New creates a submitted task from the first user message. An empty id gets
// a generated one.
func New(id string, msg contractx.Message) *Task {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	return &Task{
		ID:        id,
		Status:    StatusSubmitted,
		Messages:  []contractx.Message{msg},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendMessage appends a conversational turn. Terminal tasks are sealed.
func (t *Task) AppendMessage(msg contractx.Message) error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: cannot append message to %s task", ErrTerminal, t.Status)
	}
	t.Messages = append(t.Messages, msg)
	t.touch()
	return nil
}

// LatestUserText returns the text of the most recent user message.
func (t *Task) LatestUserText() string {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role == contractx.RoleUser {
			return t.Messages[i].Text()
		}
	}
	return ""
}

// LatestAgentText returns the text of the most recent agent message, which
// for a parked task is the question awaiting an answer.
func (t *Task) LatestAgentText() string {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role == contractx.RoleAgent {
			return t.Messages[i].Text()
		}
	}
	return ""
}

// UserText joins every user message in order. Follow-up answers extend the
// original request rather than replacing it.
func (t *Task) UserText() string {
	var parts []string
	for _, msg := range t.Messages {
		if msg.Role == contractx.RoleUser {
			if text := msg.Text(); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// Accept moves the task into working. Legal from submitted (first pickup)
// and from input-required (caller supplied the missing information).
func (t *Task) Accept() error {
	switch t.Status {
	case StatusSubmitted, StatusInputRequired:
		t.Status = StatusWorking
		t.touch()
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, t.Status, StatusWorking)
	}
}

// Complete finishes the task with a final result. Only legal from working,
// so every completed task has demonstrably been processed.
func (t *Task) Complete(result string) error {
	if t.Status != StatusWorking {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, t.Status, StatusCompleted)
	}
	t.Status = StatusCompleted
	t.Result = result
	if result != "" {
		t.Messages = append(t.Messages, contractx.AgentMessage(result))
	}
	t.touch()
	return nil
}

// Fail finishes the task with a structured fault. Only legal from working.
func (t *Task) Fail(fault *contractx.Fault) error {
	if t.Status != StatusWorking {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, t.Status, StatusFailed)
	}
	if fault == nil {
		fault = contractx.NewFault(contractx.KindInternal, "task failed")
	}
	t.Status = StatusFailed
	t.Fault = fault
	t.Messages = append(t.Messages, contractx.AgentMessage(fault.Message))
	t.touch()
	return nil
}

// Cancel stops the task before completion. Already-terminal tasks cannot be
// canceled; already-committed side effects are not rolled back.
func (t *Task) Cancel() error {
	switch t.Status {
	case StatusSubmitted, StatusWorking, StatusInputRequired:
		t.Status = StatusCanceled
		t.touch()
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, t.Status, StatusCanceled)
	}
}

// RequireInput parks the task until the caller supplies more information.
// The question is appended as an agent message so the caller sees what is
// being asked.
func (t *Task) RequireInput(question string) error {
	if t.Status != StatusWorking {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, t.Status, StatusInputRequired)
	}
	t.Status = StatusInputRequired
	if question != "" {
		t.Messages = append(t.Messages, contractx.AgentMessage(question))
	}
	t.touch()
	return nil
}

// Clone returns an independent deep copy.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Messages = make([]contractx.Message, len(t.Messages))
	for i, m := range t.Messages {
		cm := m
		cm.Parts = append([]contractx.Part(nil), m.Parts...)
		clone.Messages[i] = cm
	}
	if t.Fault != nil {
		f := *t.Fault
		clone.Fault = &f
	}
	return &clone
}

func (t *Task) touch() {
	t.UpdatedAt = time.Now().UTC()
}
