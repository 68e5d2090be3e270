package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tsig-uy/mapgate/internal/core/domain"
)

// Subjects carried by the map event streams. Draft lifecycle events go
// through JetStream so a reconnecting client can replay what happened
// to its draft; feature selections are fire-and-forget interest events.
const (
	subjectDraftPrefix     = "map.draft."
	subjectFeaturePrefix   = "map.feature."
	SubjectDraftWildcard   = "map.draft.>"
	SubjectFeatureWildcard = "map.feature.>"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS, enables JetStream and ensures the map
// event streams exist.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	streams := []nats.StreamConfig{
		{
			Name:      "MAP_DRAFTS",
			Subjects:  []string{SubjectDraftWildcard},
			Retention: nats.InterestPolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "MAP_EVENTS",
			Subjects:  []string{SubjectFeatureWildcard},
			Retention: nats.InterestPolicy,
			MaxAge:    15 * time.Minute,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, fall through to update.
			if _, err := js.UpdateStream(&cfg); err != nil {
				conn.Close()
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

type draftEventPayload struct {
	SessionID string            `json:"session_id"`
	Event     string            `json:"event"`
	Draft     domain.DraftRoute `json:"draft"`
	At        time.Time         `json:"at"`
}

func (p *Publisher) PublishDraftEvent(ctx context.Context, sessionID, event string, draft domain.DraftRoute) error {
	data, err := json.Marshal(draftEventPayload{
		SessionID: sessionID,
		Event:     event,
		Draft:     draft,
		At:        time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(subjectDraftPrefix+sessionID, data, nats.Context(ctx))
	return err
}

type featureSelectedPayload struct {
	SessionID string                  `json:"session_id"`
	Feature   domain.FeatureCandidate `json:"feature"`
	At        time.Time               `json:"at"`
}

func (p *Publisher) PublishFeatureSelected(ctx context.Context, sessionID string, feature domain.FeatureCandidate) error {
	data, err := json.Marshal(featureSelectedPayload{
		SessionID: sessionID,
		Feature:   feature,
		At:        time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(subjectFeaturePrefix+string(feature.Type)+"."+sessionID, data, nats.Context(ctx))
	return err
}

func (p *Publisher) PublishLineSaved(ctx context.Context, line *domain.Line) error {
	data, err := json.Marshal(line)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(subjectFeaturePrefix+"line.saved", data, nats.Context(ctx))
	return err
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. the
// WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
