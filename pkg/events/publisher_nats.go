package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is the root of the NATS subject tree events publish to.
const SubjectPrefix = "coffer.events"

// SubjectFor returns the NATS subject for an event kind.
func SubjectFor(kind Kind) string {
	return SubjectPrefix + "." + string(kind)
}

// NATSPublisher mirrors journal appends onto NATS subjects. Publishing
// is best-effort: a broker hiccup is logged, never surfaced to the
// operation that produced the event.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSPublisher connects to the broker. The connection reconnects
// indefinitely with a short backoff.
func NewNATSPublisher(url string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("coffer"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect nats: %w", err)
	}
	return &NATSPublisher{conn: conn, logger: logger.With("component", "events.nats")}, nil
}

// Handler returns a journal handler publishing each event to
// "coffer.events.<kind>".
func (p *NATSPublisher) Handler() Handler {
	return func(e Event) {
		data, err := json.Marshal(e)
		if err != nil {
			p.logger.Error("marshal event", "error", err, "kind", e.Kind, "sequence", e.Sequence)
			return
		}
		if err := p.conn.Publish(SubjectFor(e.Kind), data); err != nil {
			p.logger.Error("publish event", "error", err, "kind", e.Kind, "sequence", e.Sequence)
		}
	}
}

// Close flushes buffered messages and drops the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Error("drain nats connection", "error", err)
	}
}
