// Package messaging connects chat transports to the conversation engine.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/BTreeMap/WorkLog/internal/models"
)

const (
	// DefaultChannelBufferSize is the buffer size of receipt and response channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long an emit waits on a full channel.
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned by SendMessage after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

// nonDigits matches everything that is not part of a phone number.
var nonDigits = regexp.MustCompile(`\D`)

// Service defines a pluggable message delivery abstraction.
// It supports sending messages, and provides channels for receipt and response events.
type Service interface {
	// ValidateAndCanonicalizeRecipient returns the canonical user id of a
	// recipient, or an error if it is not a valid address.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., event subscription).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the event channels.
	Stop() error

	// Receipts returns a channel of receipt events (sent, delivered, read).
	Receipts() <-chan models.Receipt

	// Responses returns a channel of inbound user turns.
	Responses() <-chan models.Response
}

// CanonicalizePhone strips everything but digits and requires at least 6 of them.
func CanonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := nonDigits.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	return canonical, nil
}

// eventChannels owns the receipt and response channels of a service. Emits
// hold the read lock so close never races a send.
type eventChannels struct {
	mu        sync.RWMutex
	stopped   bool
	receipts  chan models.Receipt
	responses chan models.Response
}

func newEventChannels() *eventChannels {
	return &eventChannels{
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

func (c *eventChannels) isStopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped
}

func (c *eventChannels) emitReceipt(r models.Receipt) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		return
	}
	select {
	case c.receipts <- r:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("messaging.emitReceipt: receipts channel blocked, dropping receipt", "to", r.To)
	}
}

// emitResponse reports whether the response was queued.
func (c *eventChannels) emitResponse(r models.Response) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		slog.Warn("messaging.emitResponse: service stopped, dropping response", "from", r.From)
		return false
	}
	select {
	case c.responses <- r:
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("messaging.emitResponse: responses channel blocked, dropping message", "from", r.From)
		return false
	}
}

func (c *eventChannels) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.receipts)
	close(c.responses)
}
