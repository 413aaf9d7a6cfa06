// Package events publishes domain events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"classifieds/internal/middleware"
	"classifieds/internal/observability"

	"github.com/nats-io/nats.go"
)

// Subjects.
const (
	SubjectListingCreated   = "listings.created"
	SubjectListingUpdated   = "listings.updated"
	SubjectListingDeleted   = "listings.deleted"
	SubjectListingModerated = "listings.moderated"
	SubjectUserBlocked      = "users.blocked"
	SubjectUserUnblocked    = "users.unblocked"
)

// Event is the JSON payload of every published message.
type Event struct {
	Type    string    `json:"type"`
	ID      uint      `json:"id"`
	ActorID uint      `json:"actor_id"`
	Action  string    `json:"action,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher emits events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, subject string, event Event) error
	Close()
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, Event) error { return nil }
func (NoopPublisher) Close()                                       {}

// NATSPublisher publishes JSON events on a NATS connection.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("classifieds-api"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				middleware.Logger.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			middleware.Logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, event Event) (err error) {
	_, span := observability.StartClientSpan(ctx, "nats", "publish "+subject)
	defer func() { observability.EndSpan(span, err) }()

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.conn.Publish(subject, data)
}

func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// New returns a NATS publisher when url is set, otherwise a NoopPublisher.
// A broker that cannot be reached degrades to NoopPublisher.
func New(url string) Publisher {
	if url == "" {
		return NoopPublisher{}
	}
	p, err := NewNATSPublisher(url)
	if err != nil {
		middleware.Logger.Warn("Event publishing disabled", slog.String("error", err.Error()))
		return NoopPublisher{}
	}
	middleware.Logger.Info("NATS connected", slog.String("url", url))
	return p
}

// Emit publishes an event stamped with the current time. Failures are logged
// and counted; they never fail the operation that produced the event.
func Emit(ctx context.Context, pub Publisher, subject string, id, actorID uint, action string) {
	if pub == nil {
		return
	}
	event := Event{Type: subject, ID: id, ActorID: actorID, Action: action, At: time.Now().UTC()}
	if err := pub.Publish(ctx, subject, event); err != nil {
		observability.EventsPublished.WithLabelValues(subject, "error").Inc()
		middleware.Logger.WarnContext(ctx, "event publish failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
		return
	}
	observability.EventsPublished.WithLabelValues(subject, "ok").Inc()
}
