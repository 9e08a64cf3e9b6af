package messaging

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/twilio/twilio-go/client"

	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/twiliowhatsapp"
)

// SignatureHeader carries the Twilio request signature.
const SignatureHeader = "X-Twilio-Signature"

var _ Service = (*TwilioService)(nil)

// TwilioService implements Service with the Twilio REST API for outbound
// messages and a webhook for inbound ones.
type TwilioService struct {
	client twiliowhatsapp.Sender
	*eventChannels
	webhookURL string
	validator  *client.RequestValidator
}

// TwilioOpts holds configuration options for a TwilioService.
type TwilioOpts struct {
	WebhookURL string
	AuthToken  string
}

// TwilioOption defines a configuration option for a TwilioService.
type TwilioOption func(*TwilioOpts)

// WithWebhookValidation enables X-Twilio-Signature checks for requests sent
// to the public url, signed with authToken.
func WithWebhookValidation(url, authToken string) TwilioOption {
	return func(o *TwilioOpts) {
		o.WebhookURL = url
		o.AuthToken = authToken
	}
}

// NewTwilioService creates a TwilioService wrapping the given sender.
func NewTwilioService(sender twiliowhatsapp.Sender, opts ...TwilioOption) *TwilioService {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &TwilioService{client: sender, eventChannels: newEventChannels()}
	if cfg.WebhookURL != "" && cfg.AuthToken != "" {
		v := client.NewRequestValidator(cfg.AuthToken)
		s.validator = &v
		s.webhookURL = cfg.WebhookURL
	} else {
		slog.Warn("NewTwilioService: webhook signature validation disabled")
	}
	return s
}

// ValidateAndCanonicalizeRecipient returns the digits of a phone number,
// accepting Twilio's whatsapp: prefix.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(strings.TrimPrefix(recipient, twiliowhatsapp.ChannelPrefix))
}

// Start is a no-op; inbound messages arrive through the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the event channels.
func (s *TwilioService) Stop() error {
	s.close()
	return nil
}

// SendMessage sends a message via Twilio and emits a sent receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage: invalid recipient", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonical, body); err != nil {
		return err
	}
	s.emitReceipt(models.Receipt{To: canonical, Status: models.StatusTypeSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns the channel for sent message receipts.
func (s *TwilioService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns the channel of inbound webhook messages.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}

// WebhookHandler handles inbound Twilio webhook requests and emits them on
// the Responses channel. Quick-reply taps arrive as ButtonPayload.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService.WebhookHandler: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if s.validator != nil {
		params := make(map[string]string, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		if !s.validator.Validate(s.webhookURL, params, r.Header.Get(SignatureHeader)) {
			slog.Warn("TwilioService.WebhookHandler: invalid signature", "remote", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	response := models.Response{
		From:      r.PostFormValue("From"),
		Body:      r.PostFormValue("Body"),
		Selection: r.PostFormValue("ButtonPayload"),
		MessageID: r.PostFormValue("MessageSid"),
		Time:      time.Now().Unix(),
	}
	if response.From == "" || (response.Body == "" && response.Selection == "") {
		slog.Warn("TwilioService.WebhookHandler: missing fields", "from", response.From)
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	if !s.emitResponse(response) {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	slog.Debug("TwilioService.WebhookHandler: inbound message queued", "from", response.From, "messageID", response.MessageID)

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<Response></Response>"))
}
