package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/caremarket-platform/internal/bookings"
	"github.com/wolfman30/caremarket-platform/internal/events"
	"github.com/wolfman30/caremarket-platform/pkg/logging"
)

// BookingNotifier emails requesters and providers about booking changes. It
// is an events.DeliveryHandler.
type BookingNotifier struct {
	email     EmailSender
	directory Directory
	logger    *logging.Logger
}

// NewBookingNotifier creates a notifier.
func NewBookingNotifier(email EmailSender, directory Directory, logger *logging.Logger) *BookingNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingNotifier{email: email, directory: directory, logger: logger}
}

type audience int

const (
	toRequester audience = iota
	toProvider
)

type draft struct {
	to      audience
	subject string
	body    string
}

// Handle renders and sends the emails for one outbox entry. Non-booking
// events and recipients without an address are skipped.
func (n *BookingNotifier) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if n.email == nil || n.directory == nil || !events.IsBookingEvent(entry.Type) {
		return nil
	}
	evt, err := events.DecodeBookingEvent(entry)
	if err != nil {
		return err
	}

	provider, err := n.directory.Provider(ctx, evt.ProviderID)
	if err != nil && !errors.Is(err, ErrNoContact) {
		return err
	}
	requester, err := n.directory.User(ctx, evt.RequesterID)
	if err != nil && !errors.Is(err, ErrNoContact) {
		return err
	}

	for _, d := range render(evt, provider.Name) {
		recipient, other := requester, provider
		if d.to == toProvider {
			recipient, other = provider, requester
		}
		if recipient.Email == "" {
			n.logger.Debug("notify: no recipient address, skipping", "type", evt.Type, "booking_id", evt.BookingID)
			continue
		}
		if err := n.email.Send(ctx, EmailMessage{
			To:       recipient.Email,
			ToName:   recipient.Name,
			ReplyTo:  other.Email,
			Subject:  d.subject,
			Body:     d.body,
			Category: evt.Type,
		}); err != nil {
			return fmt.Errorf("notify: %s: %w", evt.Type, err)
		}
	}
	return nil
}

func render(evt events.BookingEventV1, providerName string) []draft {
	if providerName == "" {
		providerName = "your provider"
	}
	when := "a time to be arranged"
	if evt.ScheduledAt != nil {
		when = evt.ScheduledAt.UTC().Format("Monday, January 2 at 3:04 PM MST")
	}
	kind := "appointment"
	if evt.Kind == bookings.KindTour {
		kind = "tour"
	}

	switch evt.Type {
	case events.TypeBookingCreated:
		return []draft{
			{toProvider, fmt.Sprintf("New %s request", kind),
				fmt.Sprintf("A new %s was requested for %s. Review it in your dashboard to confirm or decline.", kind, when)},
			{toRequester, fmt.Sprintf("Your %s request was sent", kind),
				fmt.Sprintf("We sent your %s request for %s to %s. You'll hear back once they confirm.", kind, when, providerName)},
		}
	case events.TypeBookingConfirmed:
		return []draft{{toRequester, fmt.Sprintf("Your %s is confirmed", kind),
			fmt.Sprintf("%s confirmed your %s for %s.", providerName, kind, when)}}
	case events.TypeBookingCancelled:
		reason := ""
		if strings.TrimSpace(evt.Reason) != "" {
			reason = "\nReason: " + evt.Reason
		}
		if evt.CancelledBy == bookings.PartyRequester {
			return []draft{{toProvider, fmt.Sprintf("A %s was cancelled", kind),
				fmt.Sprintf("The %s for %s was cancelled by the requester.%s", kind, when, reason)}}
		}
		return []draft{{toRequester, fmt.Sprintf("Your %s was cancelled", kind),
			fmt.Sprintf("Your %s with %s for %s was cancelled.%s", kind, providerName, when, reason)}}
	case events.TypeBookingCompleted:
		return []draft{{toRequester, "Thanks for your visit",
			fmt.Sprintf("Your %s with %s on %s is complete.", kind, providerName, when)}}
	case events.TypeBookingNoShow:
		return []draft{{toRequester, "We missed you",
			fmt.Sprintf("You were marked as a no-show for your %s with %s on %s. Contact them to rebook.", kind, providerName, when)}}
	case events.TypeBookingMeetingLink:
		return []draft{{toRequester, "Your video visit link",
			fmt.Sprintf("Join your %s with %s on %s here: %s", kind, providerName, when, evt.MeetingURL)}}
	default:
		return nil
	}
}
