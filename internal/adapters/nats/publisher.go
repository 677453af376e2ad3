package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/tripsim/internal/core/domain"
	"github.com/samirrijal/tripsim/internal/pkg/metrics"
)

// StreamName is the JetStream stream holding route lifecycle events.
const StreamName = "TRIPSIM_EVENTS"

// Publisher implements ports.EventPublisher using NATS. Per-tick state
// updates go over core NATS. Lifecycle events are published asynchronously
// to JetStream so late subscribers can replay them; publishing never waits
// for an ack.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	now  func() time.Time
}

// NewPublisher connects to NATS and ensures the event stream exists.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream(
		nats.PublishAsyncMaxPending(256),
		nats.PublishAsyncErrHandler(func(_ nats.JetStream, m *nats.Msg, err error) {
			slog.Warn("jetstream publish not acknowledged", "subject", m.Subject, "error", err)
		}),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name: StreamName,
		Subjects: []string{
			"tripsim.routes.>",
			"tripsim.route.*.geometry",
			"tripsim.route.*.completed",
			SubjectNotices,
		},
		Retention: nats.LimitsPolicy,
		MaxAge:    1 * time.Hour,
		Storage:   nats.MemoryStorage,
	}
	if _, err := js.AddStream(cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js, now: time.Now}, nil
}

func (p *Publisher) PublishRouteState(ctx context.Context, snap domain.RouteSnapshot) error {
	return p.publish(SubjectRouteState(snap.ID), domain.EventRouteState, snap.ID, snap, false)
}

func (p *Publisher) PublishRouteGeometry(ctx context.Context, snap domain.RouteSnapshot) error {
	return p.publish(SubjectRouteGeometry(snap.ID), domain.EventRouteGeometry, snap.ID, snap, true)
}

func (p *Publisher) PublishRouteAdded(ctx context.Context, snap domain.RouteSnapshot) error {
	return p.publish(SubjectRoutesAdded, domain.EventRouteAdded, snap.ID, snap, true)
}

func (p *Publisher) PublishRouteRemoved(ctx context.Context, routeID int64) error {
	return p.publish(SubjectRoutesRemoved, domain.EventRouteRemoved, routeID, nil, true)
}

func (p *Publisher) PublishTripCompleted(ctx context.Context, snap domain.RouteSnapshot) error {
	return p.publish(SubjectRouteCompleted(snap.ID), domain.EventTripCompleted, snap.ID, snap, true)
}

func (p *Publisher) PublishNotice(ctx context.Context, notice domain.Notice) error {
	return p.publish(SubjectNotices, domain.EventNotice, notice.RouteID, notice, true)
}

func (p *Publisher) publish(subject string, typ domain.EventType, routeID int64, payload any, durable bool) error {
	data, err := EncodeEvent(domain.NewEvent(typ, routeID, payload, p.now()))
	if err != nil {
		return err
	}

	if durable {
		_, err = p.js.PublishAsync(subject, data)
	} else {
		err = p.conn.Publish(subject, data)
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.EventsPublished.WithLabelValues(string(typ), result).Inc()
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Conn exposes the underlying connection for health checks and relays.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close waits briefly for outstanding acks, then drains the connection.
func (p *Publisher) Close() {
	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(2 * time.Second):
		slog.Warn("closing nats with unacknowledged events", "pending", p.js.PublishAsyncPending())
	}
	_ = p.conn.Drain()
}

// EncodeEvent serializes an event envelope.
func EncodeEvent(e domain.Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return data, nil
}

// connect dials NATS and keeps reconnecting for the life of the process.
func connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("tripsim"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
