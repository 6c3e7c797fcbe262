// Package events publishes a message for every recorded proposal.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360studio/proposals/proposal"
	"github.com/c360studio/proposals/recorder"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject prefix for recorded-proposal events.
const DefaultSubject = "proposals.recorded"

// Recorded is the event payload.
type Recorded struct {
	Key         string    `json:"key"`
	Term        string    `json:"term"`
	Year        string    `json:"year"`
	Semester    string    `json:"semester"`
	Version     string    `json:"version"`
	ProjectName string    `json:"project_name,omitempty"`
	ProposedBy  string    `json:"proposed_by,omitempty"`
	Dir         string    `json:"dir"`
	RunID       string    `json:"run_id"`
	Overwrote   bool      `json:"overwrote"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Conn is the publishing side of a NATS connection.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher sends Recorded events to "<prefix>.<term>".
type Publisher struct {
	conn   Conn
	prefix string
}

// NewPublisher creates a Publisher. A nil conn makes Publish a no-op.
func NewPublisher(conn Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultSubject
	}
	return &Publisher{conn: conn, prefix: prefix}
}

// Subject returns the subject used for a term.
func (p *Publisher) Subject(term string) string {
	return p.prefix + "." + term
}

// Name identifies the publisher as a recorder side channel.
func (p *Publisher) Name() string {
	return "nats-events"
}

// Recorded publishes the event for a completed record.
func (p *Publisher) Recorded(ctx context.Context, rec *proposal.Record, res *recorder.Result) error {
	return p.Publish(ctx, Recorded{
		Key:         res.Location.Key(),
		Term:        res.Location.Term(),
		Year:        rec.Year(),
		Semester:    rec.Semester(),
		Version:     rec.Version(),
		ProjectName: rec.ProjectName(),
		ProposedBy:  rec.Value(proposal.KeyProposedBy),
		Dir:         res.Dir,
		RunID:       res.RunID,
		Overwrote:   res.Overwrote,
		RecordedAt:  res.RecordedAt,
	})
}

// Publish sends one event.
func (p *Publisher) Publish(ctx context.Context, ev Recorded) error {
	if p.conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(ev.Term), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Connect opens a NATS connection for events and the index.
func Connect(url string, timeout time.Duration) (*nats.Conn, error) {
	opts := []nats.Option{nats.Name("proposals")}
	if timeout > 0 {
		opts = append(opts, nats.Timeout(timeout))
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return conn, nil
}
