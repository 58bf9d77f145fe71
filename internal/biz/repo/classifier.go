package repo

import "context"

// ClassifierBackend is the content-classification backend interface.
// One request/response call: a prompt carrying the message batch and topic
// list goes in, free-form text expected to embed a structured
// topic -> message-id mapping comes back. No streaming, no conversation
// state across calls.
type ClassifierBackend interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
