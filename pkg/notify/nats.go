package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"splitfare/pkg/metrics"
	"splitfare/pkg/split"
	"splitfare/pkg/types"

	"github.com/liip/sheriff"
	"github.com/nats-io/nats.go"
)

// Conn is the part of *nats.Conn used for publishing
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher sends split search progress to NATS, one subject per search
type Publisher struct {
	conn   Conn
	nc     *nats.Conn
	prefix string
}

// ProgressMessage is the payload of every progress message
type ProgressMessage struct {
	SearchID  string      `json:"searchId"`
	Timestamp time.Time   `json:"timestamp"`
	State     interface{} `json:"state"`
}

// Connect dials NATS and returns a publisher for subjects under prefix
func Connect(url, prefix string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("splitfare"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			slog.Debug("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	p := NewPublisher(nc, prefix)
	p.nc = nc
	return p, nil
}

func NewPublisher(conn Conn, prefix string) *Publisher {
	return &Publisher{
		conn:   conn,
		prefix: strings.TrimSuffix(prefix, "."),
	}
}

// Close drains the connection if the publisher owns one
func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			slog.Debug("NATS drain failed", "error", err)
		}
		p.nc.Close()
	}
}

// Subject returns the subject progress of searchID is published on
func (p *Publisher) Subject(searchID string) string {
	return p.prefix + "." + subjectToken(searchID)
}

// ForSearch returns an observer that publishes every state of one search
func (p *Publisher) ForSearch(searchID string) split.Observer {
	return split.ObserverFunc(func(state types.SplitSearchState) {
		if err := p.Publish(searchID, state); err != nil {
			slog.Warn("Failed to publish split search progress", "search_id", searchID, "error", err)
		}
	})
}

// Publish sends a single state. Leg journeys are left out of progress messages.
func (p *Publisher) Publish(searchID string, state types.SplitSearchState) error {
	ctx := context.Background()

	reduced, err := sheriff.Marshal(&sheriff.Options{Groups: []string{"basic"}}, state)
	if err != nil {
		metrics.RecordNATSPublish(ctx, "error")
		return fmt.Errorf("failed to reduce state: %w", err)
	}

	data, err := json.Marshal(ProgressMessage{
		SearchID:  searchID,
		Timestamp: time.Now().UTC(),
		State:     reduced,
	})
	if err != nil {
		metrics.RecordNATSPublish(ctx, "error")
		return fmt.Errorf("failed to marshal progress message: %w", err)
	}

	if err := p.conn.Publish(p.Subject(searchID), data); err != nil {
		metrics.RecordNATSPublish(ctx, "error")
		return fmt.Errorf("failed to publish progress message: %w", err)
	}

	metrics.RecordNATSPublish(ctx, "ok")
	return nil
}

// subjectToken replaces characters NATS does not allow in a subject token
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
