package task

import (
	"errors"
	"testing"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
)

func TestNewGeneratesID(t *testing.T) {
	t.Parallel()

	tk := New("", contractx.UserMessage("hello"))
	if tk.ID == "" {
		t.Fatal("expected generated id")
	}
	if tk.Status != StatusSubmitted {
		t.Fatalf("status = %s, want submitted", tk.Status)
	}
	if len(tk.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(tk.Messages))
	}
}

func TestNewKeepsCallerSuppliedID(t *testing.T) {
	t.Parallel()

	tk := New("corr-1", contractx.UserMessage("hello"))
	if tk.ID != "corr-1" {
		t.Fatalf("id = %q, want corr-1", tk.ID)
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	t.Parallel()

	tk := New("", contractx.UserMessage("get customer 5"))
	if err := tk.Accept(); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if tk.Status != StatusWorking {
		t.Fatalf("status = %s, want working", tk.Status)
	}
	if err := tk.Complete("done"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if tk.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", tk.Status)
	}
	if tk.Result != "done" {
		t.Fatalf("result = %q", tk.Result)
	}
	last := tk.Messages[len(tk.Messages)-1]
	if last.Role != contractx.RoleAgent {
		t.Fatalf("final message role = %s, want agent", last.Role)
	}
}

func TestCompleteRequiresWorking(t *testing.T) {
	t.Parallel()

	tk := New("", contractx.UserMessage("x"))
	if err := tk.Complete("nope"); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("Complete() from submitted error = %v, want ErrBadTransition", err)
	}
	if err := tk.Fail(contractx.NewFault(contractx.KindInternal, "boom")); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("Fail() from submitted error = %v, want ErrBadTransition", err)
	}
}

func TestTerminalStatesAreSealed(t *testing.T) {
	t.Parallel()

	tk := New("", contractx.UserMessage("x"))
	if err := tk.Accept(); err != nil {
		t.Fatal(err)
	}
	if err := tk.Fail(contractx.NewFault(contractx.KindTimeout, "too slow")); err != nil {
		t.Fatal(err)
	}

	if err := tk.AppendMessage(contractx.UserMessage("more")); !errors.Is(err, ErrTerminal) {
		t.Fatalf("AppendMessage() error = %v, want ErrTerminal", err)
	}
	if err := tk.Accept(); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("Accept() after failed error = %v, want ErrBadTransition", err)
	}
	if err := tk.Cancel(); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("Cancel() after failed error = %v, want ErrBadTransition", err)
	}
	if tk.Fault == nil || tk.Fault.Kind != contractx.KindTimeout {
		t.Fatalf("fault = %+v", tk.Fault)
	}
}

func TestInputRequiredLoopsBackToWorking(t *testing.T) {
	t.Parallel()

	tk := New("", contractx.UserMessage("create a ticket"))
	if err := tk.Accept(); err != nil {
		t.Fatal(err)
	}
	if err := tk.RequireInput("which customer id?"); err != nil {
		t.Fatalf("RequireInput() error = %v", err)
	}
	if tk.Status != StatusInputRequired {
		t.Fatalf("status = %s, want input-required", tk.Status)
	}

	// The caller answers on the same task, not a new one.
	if err := tk.AppendMessage(contractx.UserMessage("customer id 3")); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if err := tk.Accept(); err != nil {
		t.Fatalf("Accept() from input-required error = %v", err)
	}
	if tk.Status != StatusWorking {
		t.Fatalf("status = %s, want working", tk.Status)
	}
}

func TestCancelBeforeCompletion(t *testing.T) {
	t.Parallel()

	for _, start := range []Status{StatusSubmitted, StatusWorking, StatusInputRequired} {
		tk := New("", contractx.UserMessage("x"))
		tk.Status = start
		if err := tk.Cancel(); err != nil {
			t.Fatalf("Cancel() from %s error = %v", start, err)
		}
		if tk.Status != StatusCanceled {
			t.Fatalf("status = %s, want canceled", tk.Status)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	tk := New("", contractx.UserMessage("original"))
	clone := tk.Clone()
	clone.Messages[0].Parts[0].Text = "mutated"
	clone.Status = StatusFailed

	if tk.Messages[0].Parts[0].Text != "original" {
		t.Fatal("clone mutation leaked into source messages")
	}
	if tk.Status != StatusSubmitted {
		t.Fatal("clone mutation leaked into source status")
	}
}

func TestLatestUserText(t *testing.T) {
	t.Parallel()

	tk := New("", contractx.UserMessage("first"))
	if err := tk.Accept(); err != nil {
		t.Fatal(err)
	}
	if err := tk.RequireInput("which one?"); err != nil {
		t.Fatal(err)
	}
	if err := tk.AppendMessage(contractx.UserMessage("second")); err != nil {
		t.Fatal(err)
	}
	if got := tk.LatestUserText(); got != "second" {
		t.Fatalf("LatestUserText() = %q, want second", got)
	}
}
