package messaging

import (
	"context"
	"log/slog"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/whatsapp"
)

// EventSource is implemented by clients that deliver whatsmeow events.
type EventSource interface {
	AddEventHandler(h func(evt any)) uint32
	RemoveEventHandler(id uint32)
}

var (
	_ Service     = (*WhatsAppService)(nil)
	_ EventSource = (*whatsapp.Client)(nil)
)

// WhatsAppService implements Service on top of a whatsmeow-based client.
type WhatsAppService struct {
	client whatsapp.Sender
	events EventSource
	*eventChannels
	handlerID uint32
}

// NewWhatsAppService creates a WhatsAppService. Inbound events are only
// subscribed when client is also an EventSource.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	s := &WhatsAppService{client: client, eventChannels: newEventChannels()}
	if src, ok := client.(EventSource); ok {
		s.events = src
	} else {
		slog.Debug("NewWhatsAppService: client has no event source, inbound disabled")
	}
	return s
}

// ValidateAndCanonicalizeRecipient returns the digits of a phone number.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// Start subscribes to inbound messages and receipts.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.events == nil {
		return nil
	}
	s.handlerID = s.events.AddEventHandler(s.handleEvent)
	slog.Info("WhatsAppService.Start: event handler registered")
	return nil
}

// Stop unsubscribes and closes the event channels.
func (s *WhatsAppService) Stop() error {
	if s.events != nil && s.handlerID != 0 {
		s.events.RemoveEventHandler(s.handlerID)
	}
	s.close()
	slog.Info("WhatsAppService.Stop: stopped and channels closed")
	return nil
}

// SendMessage sends a message and emits a sent receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, canonical, body); err != nil {
		slog.Error("WhatsAppService.SendMessage: send failed", "error", err, "to", canonical)
		return err
	}
	s.emitReceipt(models.Receipt{To: canonical, Status: models.StatusTypeSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns a channel of receipt events.
func (s *WhatsAppService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns a channel of inbound responses.
func (s *WhatsAppService) Responses() <-chan models.Response {
	return s.responses
}

func (s *WhatsAppService) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Message:
		if resp, ok := responseFromMessage(v); ok {
			s.emitResponse(resp)
		}
	case *events.Receipt:
		if r, ok := receiptFromEvent(v); ok {
			s.emitReceipt(r)
		}
	}
}

// responseFromMessage extracts a turn from a direct message. Text, extended
// text, button replies and list replies are understood; anything else is ignored.
func responseFromMessage(evt *events.Message) (models.Response, bool) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return models.Response{}, false
	}
	msg := evt.Message
	resp := models.Response{
		From:      "+" + evt.Info.Sender.User,
		MessageID: evt.Info.ID,
		Time:      evt.Info.Timestamp.Unix(),
	}
	switch {
	case msg.Conversation != nil:
		resp.Body = msg.GetConversation()
	case msg.ExtendedTextMessage != nil && msg.ExtendedTextMessage.Text != nil:
		resp.Body = msg.GetExtendedTextMessage().GetText()
	case msg.ButtonsResponseMessage != nil:
		resp.Selection = msg.GetButtonsResponseMessage().GetSelectedButtonID()
		resp.Body = msg.GetButtonsResponseMessage().GetSelectedDisplayText()
	case msg.ListResponseMessage != nil:
		resp.Selection = msg.GetListResponseMessage().GetSingleSelectReply().GetSelectedRowID()
		resp.Body = msg.GetListResponseMessage().GetTitle()
	default:
		slog.Debug("WhatsAppService: ignoring non-text message", "from", resp.From)
		return models.Response{}, false
	}
	if resp.Body == "" && resp.Selection == "" {
		return models.Response{}, false
	}
	return resp, true
}

func receiptFromEvent(evt *events.Receipt) (models.Receipt, bool) {
	var status models.StatusType
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = models.StatusTypeDelivered
	case events.ReceiptTypeRead:
		status = models.StatusTypeRead
	default:
		return models.Receipt{}, false
	}
	return models.Receipt{
		To:     "+" + evt.MessageSource.Sender.User,
		Status: status,
		Time:   evt.Timestamp.Unix(),
	}, true
}
