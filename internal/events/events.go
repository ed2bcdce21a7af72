// Package events announces changes to an archive on a NATS subject so that downstream
// consumers can pick up new soundings without polling the index.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
)

// Action is the kind of change an event announces.
type Action string

const (
	ActionAdded   Action = "added"
	ActionRemoved Action = "removed"
)

// Event describes one file added to or removed from an archive.
type Event struct {
	Action   Action    `json:"action"`
	Archive  string    `json:"archive"`
	Site     string    `json:"site"`
	Type     string    `json:"type"`
	InitTime time.Time `json:"init_time"`
	FileName string    `json:"file_name"`
	At       time.Time `json:"at"`
}

// Publisher sends archive events.
type Publisher interface {
	Publish(ev Event) error
	Close() error
}

// Nop is a Publisher that drops every event. It is used when no NATS server is
// configured.
type Nop struct{}

func (Nop) Publish(Event) error { return nil }
func (Nop) Close() error        { return nil }

// Conn is the part of a NATS connection the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Flush() error
}

// NATSPublisher publishes events as JSON to "<subject>.<action>".
type NATSPublisher struct {
	conn    Conn
	nc      *nats.Conn // nil when the connection is not owned
	subject string
	clock   clockwork.Clock
}

// Option configures a NATSPublisher.
type Option func(*NATSPublisher)

// WithClock sets the clock used to stamp events that carry no time.
func WithClock(c clockwork.Clock) Option {
	return func(p *NATSPublisher) { p.clock = c }
}

// Connect dials a NATS server and returns a publisher owning the connection.
func Connect(url, subject string, opts ...Option) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("sounding_archive"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	p := NewPublisher(nc, subject, opts...)
	p.nc = nc
	return p, nil
}

// NewPublisher returns a publisher sending on an existing connection. Close does not
// close conn.
func NewPublisher(conn Conn, subject string, opts ...Option) *NATSPublisher {
	p := &NATSPublisher{conn: conn, subject: subject, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subject returns the subject an action is published on.
func (p *NATSPublisher) Subject(a Action) string {
	return p.subject + "." + string(a)
}

// Publish sends ev. A zero At is set to the current time.
func (p *NATSPublisher) Publish(ev Event) error {
	if ev.At.IsZero() {
		ev.At = p.clock.Now().UTC()
	}
	ev.InitTime = ev.InitTime.UTC()

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(ev.Action), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.FileName, err)
	}
	return nil
}

// Close flushes pending events and closes the connection if the publisher owns it.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Flush(); err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
