// Package notify forwards accepted contact inquiries to external systems
// such as a webhook endpoint or a NATS subject.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/c360studio/shelter/model"
)

// Inquiry is the payload sent for an accepted contact form submission.
type Inquiry struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Message    string    `json:"message"`
	ReceivedAt time.Time `json:"received_at"`
}

// InquiryFromContact builds the notification payload for a stored contact.
func InquiryFromContact(c model.Contact) Inquiry {
	return Inquiry{
		ID:         c.ID,
		Name:       c.Name,
		Email:      c.Email,
		Message:    c.Message,
		ReceivedAt: c.CreatedAt.UTC(),
	}
}

// Notifier delivers inquiries. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, in Inquiry) error
	Close() error
}

// Nop discards every inquiry.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Inquiry) error { return nil }

// Close implements Notifier.
func (Nop) Close() error { return nil }

// Multi fans an inquiry out to every notifier. All notifiers are tried even
// when one fails; the failures are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, in Inquiry) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, in); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Notifier.
func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Combine returns the notifier for the given set: Nop when empty, the single
// notifier when there is one, Multi otherwise.
func Combine(notifiers ...Notifier) Notifier {
	var active Multi
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	switch len(active) {
	case 0:
		return Nop{}
	case 1:
		return active[0]
	default:
		return active
	}
}
