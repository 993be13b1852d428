package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pland/internal/task"
)

// SubjectPrefix is the NATS subject tree for transition events. The task ID
// is appended as-is, so dotted IDs form a subject hierarchy and consumers
// subscribe with "pland.tasks.>".
const SubjectPrefix = "pland.tasks."

// natsConn is the subset of *nats.Conn the publisher needs.
type natsConn interface {
	Publish(subj string, data []byte) error
}

// Publisher mirrors transition events to NATS.
type Publisher struct {
	conn   natsConn
	logger *zap.Logger
}

// NewPublisher creates a publisher over an established connection.
func NewPublisher(conn natsConn, logger *zap.Logger) (*Publisher, error) {
	if conn == nil {
		return nil, errors.New("nats connection is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: conn, logger: logger}, nil
}

// Connect dials a NATS server with daemon-appropriate options.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("pland"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return conn, nil
}

// Dispatch publishes one event. It matches task.Listener so it can be
// registered directly on the graph; publish failures are logged, never
// surfaced, because event mirroring must not stall execution.
func (p *Publisher) Dispatch(ev task.TransitionEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("failed to marshal transition event", zap.Error(err))
		return
	}
	subject := SubjectPrefix + ev.TaskID
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("failed to publish transition event",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}
