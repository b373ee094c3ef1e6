package bootstrap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/caremarket-platform/internal/archive"
	appconfig "github.com/wolfman30/caremarket-platform/internal/config"
	"github.com/wolfman30/caremarket-platform/internal/events"
	"github.com/wolfman30/caremarket-platform/internal/notify"
)

func TestBuildRedisClient(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, nil, true))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, nil, true)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })
	assert.NoError(t, RedisPinger{Client: client}.Ping(context.Background()))

	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, nil, true))
}

func TestConnectPostgresRequiresURL(t *testing.T) {
	_, err := ConnectPostgres(context.Background(), " ")
	assert.ErrorContains(t, err, "DATABASE_URL is required")
}

func TestBuildMetricsServesBookingCollectors(t *testing.T) {
	handler, m := BuildMetrics()
	m.ObserveAction("create_booking", "ok", 0.02)
	m.ObserveSweep("COMPLETED", 3)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `caremarket_bookings_transitions_total{action="create_booking",result="ok"} 1`)
	assert.Contains(t, string(body), `caremarket_sweeper_bookings_total{to_status="COMPLETED"} 3`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestBuildEmailSender(t *testing.T) {
	cfg := &appconfig.Config{EmailProvider: "sendgrid", SendGridAPIKey: "SG.test", EmailFromAddress: "no-reply@caremarket.app"}
	assert.IsType(t, &notify.SendGridSender{}, BuildEmailSender(cfg, nil, nil))

	cfg = &appconfig.Config{EmailProvider: "sendgrid"}
	assert.IsType(t, &notify.StubEmailSender{}, BuildEmailSender(cfg, nil, nil))

	cfg = &appconfig.Config{EmailProvider: "ses"}
	assert.IsType(t, &notify.SESSender{}, BuildEmailSender(cfg, &aws.Config{Region: "us-east-1"}, nil))
	assert.IsType(t, &notify.StubEmailSender{}, BuildEmailSender(cfg, nil, nil))

	cfg = &appconfig.Config{EmailProvider: "carrier-pigeon"}
	assert.IsType(t, &notify.StubEmailSender{}, BuildEmailSender(cfg, nil, nil))
}

type fakeSQS struct{ events.SQSAPI }

type fakeS3 struct{ archive.S3API }

func TestBuildDelivery(t *testing.T) {
	feed := events.HandlerFunc(func(context.Context, events.OutboxEntry) error { return nil })

	fanout := BuildDelivery(&appconfig.Config{}, DeliveryDeps{})
	assert.Equal(t, 0, fanout.Len())

	cfg := &appconfig.Config{NotificationQueueURL: "http://localhost:4566/000000000000/bookings"}
	fanout = BuildDelivery(cfg, DeliveryDeps{
		Notifier: notify.NewBookingNotifier(notify.NewStubEmailSender(nil), fakeDirectory{}, nil),
		Feed:     feed,
		SQS:      fakeSQS{},
		Archive:  archive.NewStore(fakeS3{}, "caremarket-archive", nil),
	})
	assert.Equal(t, 4, fanout.Len())

	fanout = BuildDelivery(&appconfig.Config{}, DeliveryDeps{
		SQS:     fakeSQS{},
		Archive: archive.NewStore(fakeS3{}, "", nil),
	})
	assert.Equal(t, 0, fanout.Len(), "queue without URL and archive without bucket are skipped")
}

type fakeDirectory struct{ notify.Directory }
