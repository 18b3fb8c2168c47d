// Package notify delivers push notifications to subscribers of a device,
// tolerating partial failure and pruning endpoints the provider reports
// as gone. Nothing in this package ever propagates an error back into the
// ingestion pipeline.
package notify

import "context"

// Notification is the structured payload handed to the dispatcher.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
	URL   string
}

// SendResult is the per-token outcome of a multicast.
type SendResult struct {
	Token string
	Err   error
	// Gone marks tokens the provider reports as unregistered; their
	// subscriptions must be deleted.
	Gone bool
}

// Provider is the delivery backend contract.
type Provider interface {
	// SendMulticast delivers one message to every token, returning one
	// result per token in order. The returned error covers call-level
	// failures only (the whole batch unreachable).
	SendMulticast(ctx context.Context, tokens []string, n Notification) ([]SendResult, error)
}

// NopProvider drops every notification. Used when FCM is not configured.
type NopProvider struct{}

func (NopProvider) SendMulticast(ctx context.Context, tokens []string, n Notification) ([]SendResult, error) {
	results := make([]SendResult, len(tokens))
	for i, tok := range tokens {
		results[i] = SendResult{Token: tok}
	}
	return results, nil
}
