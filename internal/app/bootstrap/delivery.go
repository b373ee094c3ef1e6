package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/caremarket-platform/internal/archive"
	appconfig "github.com/wolfman30/caremarket-platform/internal/config"
	"github.com/wolfman30/caremarket-platform/internal/events"
	"github.com/wolfman30/caremarket-platform/internal/notify"
	"github.com/wolfman30/caremarket-platform/pkg/logging"
)

// Consumer names key processed_events rows; renaming one replays its backlog.
const (
	ConsumerNotifier = "email-notifier"
	ConsumerQueue    = "sqs-forwarder"
	ConsumerFeed     = "provider-feed"
	ConsumerArchive  = "s3-archive"
)

// BuildEmailSender picks the transactional email provider. awsCfg is only
// read for EMAIL_PROVIDER=ses and may be nil otherwise. Missing credentials
// fall back to the logging stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("sendgrid selected without SENDGRID_API_KEY; using stub email sender")
	case "ses":
		if awsCfg != nil {
			return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
				FromEmail: cfg.EmailFromAddress,
				FromName:  cfg.EmailFromName,
			}, logger)
		}
		logger.Warn("ses selected without AWS config; using stub email sender")
	case "", "stub":
	default:
		logger.Warn("unknown EMAIL_PROVIDER; using stub email sender", "provider", cfg.EmailProvider)
	}
	return notify.NewStubEmailSender(logger)
}

// DeliveryDeps are the consumers the outbox fans out to. Nil fields are
// skipped.
type DeliveryDeps struct {
	Tracker  *events.ProcessedStore
	Notifier *notify.BookingNotifier
	Feed     events.DeliveryHandler
	SQS      events.SQSAPI
	Archive  *archive.Store
}

// BuildDelivery assembles the outbox fan-out for the configured consumers.
func BuildDelivery(cfg *appconfig.Config, deps DeliveryDeps) *events.FanOut {
	var handlers []events.NamedHandler
	if deps.Notifier != nil {
		handlers = append(handlers, events.NamedHandler{Name: ConsumerNotifier, Handler: deps.Notifier})
	}
	if deps.SQS != nil && cfg.NotificationQueueURL != "" {
		handlers = append(handlers, events.NamedHandler{
			Name:    ConsumerQueue,
			Handler: events.NewSQSForwarder(deps.SQS, cfg.NotificationQueueURL),
		})
	}
	if deps.Feed != nil {
		handlers = append(handlers, events.NamedHandler{Name: ConsumerFeed, Handler: deps.Feed})
	}
	if deps.Archive.Enabled() {
		handlers = append(handlers, events.NamedHandler{Name: ConsumerArchive, Handler: deps.Archive})
	}
	return events.NewFanOut(deps.Tracker, handlers...)
}

// newSQSClient returns nil when no queue is configured.
func newSQSClient(awsCfg *aws.Config, cfg *appconfig.Config) events.SQSAPI {
	if awsCfg == nil || cfg.NotificationQueueURL == "" {
		return nil
	}
	return sqs.NewFromConfig(*awsCfg)
}
