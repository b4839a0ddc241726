package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Channel identifies one delivery medium.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelTelegram Channel = "telegram"
)

// Valid reports whether c is one of the supported channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelTelegram:
		return true
	}
	return false
}

// DeliveryRequest is the immutable unit of work produced at enqueue time and
// consumed by a delivery task. Retries re-use the same request; nothing
// mutates it after creation.
type DeliveryRequest struct {
	ID        string    `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Channel   Channel   `json:"channel"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	Options   Options   `json:"options,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Options carries channel-specific delivery flags. Fields that do not apply
// to the request's channel are ignored by its task.
type Options struct {
	CC          []string     `json:"cc,omitempty"`
	BCC         []string     `json:"bcc,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	HTML        bool         `json:"html,omitempty"`

	TelegramParseMode string `json:"telegram_parse_mode,omitempty"`
	TelegramSilent    bool   `json:"telegram_silent,omitempty"`
}

// Attachment references a file by path. Name overrides the filename shown to
// the recipient when set.
type Attachment struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
}

// NewDeliveryRequest builds a request with a fresh id and timestamp.
func NewDeliveryRequest(tenantID int64, channel Channel, recipient, subject, body string, opts Options) (*DeliveryRequest, error) {
	if !channel.Valid() {
		return nil, fmt.Errorf("unknown channel %q", channel)
	}
	if recipient == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	return &DeliveryRequest{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Channel:   channel,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		Options:   opts,
		CreatedAt: time.Now().UTC(),
	}, nil
}
