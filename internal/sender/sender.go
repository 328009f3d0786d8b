package sender

import (
	"context"
	"errors"
	"time"

	"regwatch/internal/model"
)

// ErrNoSender is returned by a Registry lookup when no sender is
// registered for a channel's type.
var ErrNoSender = errors.New("sender: no sender registered for channel type")

// PayloadKind distinguishes a single-change notification from a digest
// batch.
type PayloadKind string

const (
	KindChange PayloadKind = "change"
	KindDigest PayloadKind = "digest"
)

// Digest is the batched payload built by the aggregator: counts per
// change class plus the individual change summaries for one window.
type Digest struct {
	Frequency    model.DigestFrequency `json:"frequency"`
	Since        time.Time             `json:"since"`
	Until        time.Time             `json:"until"`
	NewCount     int                   `json:"new_count"`
	UpdatedCount int                   `json:"updated_count"`
	RemovedCount int                   `json:"removed_count"`
	Changes      []*model.Change       `json:"changes"`
}

// Payload is what the engine hands a sender: either one change or one
// digest, plus pre-rendered title/summary text so thin senders do not
// need to know the entity model. Channel-specific wire formatting stays
// inside each sender.
type Payload struct {
	Kind    PayloadKind   `json:"kind"`
	Title   string        `json:"title"`
	Summary string        `json:"summary"`
	Change  *model.Change `json:"change,omitempty"`
	Digest  *Digest       `json:"digest,omitempty"`
}

// Sender delivers one payload to one channel. Implementations are thin
// I/O wrappers; they must honor ctx cancellation and return an error for
// any non-delivered payload.
type Sender interface {
	Send(ctx context.Context, ch *model.Channel, p *Payload) error
}

// Registry maps channel types to senders. It is built once at wiring
// time and injected into the dispatcher and aggregator, avoiding any
// global dispatch table.
type Registry map[model.ChannelType]Sender

// For returns the sender for a channel type, or ErrNoSender.
func (r Registry) For(t model.ChannelType) (Sender, error) {
	s, ok := r[t]
	if !ok || s == nil {
		return nil, ErrNoSender
	}
	return s, nil
}
