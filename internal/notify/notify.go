// Package notify defines the outbound notification port. Send failures
// never roll back ledger state; the caller's retry is its own next cycle.
package notify

import "context"

// Message is one rendered notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a notification to its recipient.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
