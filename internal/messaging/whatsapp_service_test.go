package messaging

import (
	"context"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/whatsapp"
)

// eventClient is a mock sender that also delivers events.
type eventClient struct {
	*whatsapp.MockClient
	handler func(evt any)
	removed bool
}

func (c *eventClient) AddEventHandler(h func(evt any)) uint32 {
	c.handler = h
	return 7
}

func (c *eventClient) RemoveEventHandler(id uint32) {
	c.removed = id == 7
}

func incoming(msg *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Sender: types.NewJID("15551234567", types.DefaultUserServer)},
			ID:            "wamid-1",
			Timestamp:     time.Unix(1700000000, 0),
		},
		Message: msg,
	}
}

func TestWhatsAppService_SendMessage_Receipt(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	if err := svc.SendMessage(context.Background(), "+1 555 123 4567", "hello"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if sent := mockClient.Sent(); len(sent) != 1 || sent[0].To != "15551234567" {
		t.Fatalf("unexpected sent messages: %+v", sent)
	}
	select {
	case receipt := <-svc.Receipts():
		if receipt.Status != models.StatusTypeSent {
			t.Errorf("expected receipt.Status %s, got %s", models.StatusTypeSent, receipt.Status)
		}
	default:
		t.Fatal("expected receipt, got none")
	}
}

func TestWhatsAppService_StartStop(t *testing.T) {
	client := &eventClient{MockClient: whatsapp.NewMockClient()}
	svc := NewWhatsAppService(client)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if client.handler == nil {
		t.Fatal("expected event handler to be registered")
	}

	body := "hello"
	client.handler(incoming(&waE2E.Message{Conversation: &body}))
	select {
	case resp := <-svc.Responses():
		if resp.From != "+15551234567" || resp.Body != "hello" || resp.MessageID != "wamid-1" {
			t.Errorf("unexpected response: %+v", resp)
		}
	default:
		t.Fatal("expected a response")
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if !client.removed {
		t.Error("expected event handler to be removed")
	}
	if _, ok := <-svc.Responses(); ok {
		t.Error("expected responses channel closed")
	}
	if _, ok := <-svc.Receipts(); ok {
		t.Error("expected receipts channel closed")
	}
	if err := svc.SendMessage(context.Background(), "+15551234567", "late"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
}

func TestResponseFromMessage(t *testing.T) {
	text := "6"
	buttonID, buttonText := "cat.machinery", "Machinery"
	rowID, rowTitle := "loc.north", "North"

	tests := []struct {
		name      string
		msg       *waE2E.Message
		ok        bool
		body      string
		selection string
	}{
		{"conversation", &waE2E.Message{Conversation: &text}, true, "6", ""},
		{"extended text", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: &text}}, true, "6", ""},
		{"button reply", &waE2E.Message{ButtonsResponseMessage: &waE2E.ButtonsResponseMessage{
			SelectedButtonID: &buttonID,
			Response:         &waE2E.ButtonsResponseMessage_SelectedDisplayText{SelectedDisplayText: buttonText},
		}}, true, "Machinery", "cat.machinery"},
		{"list reply", &waE2E.Message{ListResponseMessage: &waE2E.ListResponseMessage{
			Title:             &rowTitle,
			SingleSelectReply: &waE2E.ListResponseMessage_SingleSelectReply{SelectedRowID: &rowID},
		}}, true, "North", "loc.north"},
		{"image", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, ok := responseFromMessage(incoming(tt.msg))
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if resp.Body != tt.body || resp.Selection != tt.selection {
				t.Errorf("got body %q selection %q", resp.Body, resp.Selection)
			}
		})
	}

	own := incoming(&waE2E.Message{Conversation: &text})
	own.Info.IsFromMe = true
	if _, ok := responseFromMessage(own); ok {
		t.Error("own messages must be ignored")
	}
}

func TestReceiptFromEvent(t *testing.T) {
	evt := &events.Receipt{
		MessageSource: types.MessageSource{Sender: types.NewJID("15551234567", types.DefaultUserServer)},
		Type:          events.ReceiptTypeRead,
		Timestamp:     time.Unix(1700000000, 0),
	}
	r, ok := receiptFromEvent(evt)
	if !ok || r.Status != models.StatusTypeRead || r.To != "+15551234567" {
		t.Fatalf("unexpected receipt %+v ok=%v", r, ok)
	}
	evt.Type = events.ReceiptTypeReadSelf
	if _, ok := receiptFromEvent(evt); ok {
		t.Error("self read receipts must be ignored")
	}
}
