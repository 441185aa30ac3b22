package contract

import "context"

// IntentClassifier derives the capability set and extracted entities from a
// free-text request. Implementations may be rule-based or model-based; the
// router never depends on which.
type IntentClassifier interface {
	Classify(ctx context.Context, text string) (Intent, error)
}

// UrgencyClassifier maps a request's tone to a ticket priority.
type UrgencyClassifier interface {
	Classify(ctx context.Context, text string) (Priority, error)
}

// ToolInvoker executes one named gateway operation. A tool-level failure is
// returned inside the ToolResult; a non-nil error means the invocation
// itself could not be carried out (transport, timeout).
type ToolInvoker interface {
	Invoke(ctx context.Context, req ToolRequest) (ToolResult, error)
}
