package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject inquiries are published on.
const DefaultSubject = "shelter.inquiry.contact"

// flushTimeout applies when the caller's context carries no deadline.
const flushTimeout = 5 * time.Second

// publisher is the subset of *nats.Conn used by NATSNotifier.
type publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSNotifier publishes each inquiry as JSON on a NATS subject.
type NATSNotifier struct {
	conn    publisher
	subject string
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewNATSNotifier connects to the NATS server at url.
func NewNATSNotifier(url, subject string, logger *slog.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("shelter"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return newNATSNotifier(nc, subject, logger), nil
}

func newNATSNotifier(conn publisher, subject string, logger *slog.Logger) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSNotifier{conn: conn, subject: subject, logger: logger}
}

// Subject returns the subject inquiries are published on.
func (n *NATSNotifier) Subject() string { return n.subject }

// Notify implements Notifier. The message is flushed so delivery failures
// surface here rather than on a later publish.
func (n *NATSNotifier) Notify(ctx context.Context, in Inquiry) error {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()
	if closed {
		return fmt.Errorf("publish inquiry: notifier closed")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}

	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal inquiry: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish inquiry: %w", err)
	}
	// FlushWithContext rejects contexts without a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush inquiry: %w", err)
	}

	n.logger.Debug("Inquiry published", "id", in.ID, "subject", n.subject)
	return nil
}

// Close drains the connection. Calling Close more than once is a no-op.
func (n *NATSNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	return n.conn.Drain()
}
