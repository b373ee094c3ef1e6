package notify

import (
	"context"
	"net/mail"
	"strings"

	"github.com/wolfman30/caremarket-platform/pkg/logging"
)

// DefaultFromName is used when no sender display name is configured.
const DefaultFromName = "CareMarket"

// EmailSender delivers one email message.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a plain-text transactional email. Category carries the
// booking event type so providers can group deliveries in their dashboards.
type EmailMessage struct {
	To       string
	ToName   string
	ReplyTo  string
	Subject  string
	Body     string
	Category string
}

// Sender is the From identity shared by every transport.
type Sender struct {
	Address string
	Name    string
}

func (s Sender) withDefaults() Sender {
	if strings.TrimSpace(s.Name) == "" {
		s.Name = DefaultFromName
	}
	return s
}

// header renders the RFC 5322 From value, quoting the name when needed.
func (s Sender) header() string {
	return (&mail.Address{Name: s.Name, Address: s.Address}).String()
}

// StubEmailSender logs messages instead of sending them.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("email suppressed", "to", msg.To, "subject", msg.Subject, "category", msg.Category)
	return nil
}
