package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/WorkLog/internal/flow"
	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/store"
)

// FallbackMessage is sent when a turn fails without a prompt to show.
const FallbackMessage = "Something went wrong on our side. Please try again."

// TurnHandler runs one conversation turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, userID string, in flow.Input) (flow.Prompt, error)
}

var _ TurnHandler = (*flow.Engine)(nil)

// ResponseHandler feeds inbound responses of a Service into a TurnHandler
// and sends the rendered prompt back to the sender.
type ResponseHandler struct {
	msgService Service
	turns      TurnHandler
	renderer   *Renderer
	dedup      store.DedupRepo
}

// HandlerOpts holds configuration options for a ResponseHandler.
type HandlerOpts struct {
	Renderer *Renderer
	Dedup    store.DedupRepo
}

// HandlerOption defines a configuration option for a ResponseHandler.
type HandlerOption func(*HandlerOpts)

// WithRenderer sets the prompt renderer.
func WithRenderer(r *Renderer) HandlerOption {
	return func(o *HandlerOpts) {
		o.Renderer = r
	}
}

// WithDedup drops responses whose provider message id was already seen.
func WithDedup(repo store.DedupRepo) HandlerOption {
	return func(o *HandlerOpts) {
		o.Dedup = repo
	}
}

// NewResponseHandler creates a ResponseHandler.
func NewResponseHandler(msgService Service, turns TurnHandler, opts ...HandlerOption) *ResponseHandler {
	var cfg HandlerOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Renderer == nil {
		cfg.Renderer = NewRenderer(0)
	}
	return &ResponseHandler{
		msgService: msgService,
		turns:      turns,
		renderer:   cfg.Renderer,
		dedup:      cfg.Dedup,
	}
}

// ProcessResponse runs one inbound response through the engine and replies.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	userID, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler.ProcessResponse: invalid sender", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}

	if rh.dedup != nil && response.MessageID != "" {
		fresh, err := rh.dedup.RecordInbound(ctx, response.MessageID, userID)
		if err != nil {
			// The turn is still processed.
			slog.Error("ResponseHandler.ProcessResponse: dedup check failed", "error", err, "messageID", response.MessageID)
		} else if !fresh {
			slog.Info("ResponseHandler.ProcessResponse: duplicate message skipped", "userID", userID, "messageID", response.MessageID)
			return nil
		}
	}

	prompt, turnErr := rh.turns.HandleTurn(ctx, userID, flow.Input{Text: response.Body, Selection: response.Selection})
	if turnErr != nil {
		slog.Error("ResponseHandler.ProcessResponse: turn failed", "error", turnErr, "userID", userID)
	}
	body := rh.renderer.Render(prompt)
	if body == "" {
		body = FallbackMessage
	}
	if err := rh.msgService.SendMessage(ctx, userID, body); err != nil {
		slog.Error("ResponseHandler.ProcessResponse: reply failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to send reply: %w", err)
	}

	if rh.dedup != nil && response.MessageID != "" {
		if err := rh.dedup.MarkProcessed(ctx, response.MessageID); err != nil {
			slog.Warn("ResponseHandler.ProcessResponse: mark processed failed", "error", err, "messageID", response.MessageID)
		}
	}
	if turnErr != nil {
		return fmt.Errorf("turn failed: %w", turnErr)
	}
	return nil
}

// Run processes responses until ctx is cancelled or the responses channel closes.
func (rh *ResponseHandler) Run(ctx context.Context) {
	slog.Info("ResponseHandler.Run: started")
	defer slog.Info("ResponseHandler.Run: stopped")
	responses := rh.msgService.Responses()
	for {
		select {
		case response, ok := <-responses:
			if !ok {
				slog.Debug("ResponseHandler.Run: responses channel closed")
				return
			}
			if err := rh.ProcessResponse(ctx, response); err != nil {
				slog.Error("ResponseHandler.Run: failed to process response", "error", err, "from", response.From)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Start runs Run in a new goroutine.
func (rh *ResponseHandler) Start(ctx context.Context) {
	go rh.Run(ctx)
}
