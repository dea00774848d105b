// Package changefeed carries per-document change notifications from the
// engine to live subscribers (dashboards, other client sessions).
package changefeed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// Collections that publish changes.
const (
	Units       = "units"
	Requests    = "sale_requests"
	Sales       = "sale_records"
	Tokens      = "esim_tokens"
	Allocations = "esim_allocations"
	Events      = "marketing_events"
)

var known = map[string]bool{
	Units: true, Requests: true, Sales: true, Tokens: true, Allocations: true, Events: true,
}

// Known reports whether collection publishes changes.
func Known(collection string) bool {
	return known[collection]
}

// Op is the kind of mutation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is one document mutation: id plus the field snapshot after the write.
type Change struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Op         Op              `json:"op"`
	Fields     json.RawMessage `json:"fields,omitempty"`
	At         time.Time       `json:"at"`
}

// Publisher receives every successful mutation.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Subscriber streams changes for the given collections (all when none given)
// until ctx is cancelled, then closes the channel.
type Subscriber interface {
	Subscribe(ctx context.Context, collections ...string) (<-chan Change, error)
}

// Feed is both ends.
type Feed interface {
	Publisher
	Subscriber
}

// Of builds a change carrying doc's JSON snapshot.
func Of(collection, id string, op Op, doc interface{}, at time.Time) Change {
	c := Change{Collection: collection, ID: id, Op: op, At: at}
	if doc != nil {
		if b, err := json.Marshal(doc); err == nil {
			c.Fields = b
		}
	}
	return c
}

// Emit publishes c on p, if any. Notification is best effort: the write it
// describes has already landed, so a failed publish is logged and dropped.
func Emit(ctx context.Context, p Publisher, c Change) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, c); err != nil {
		log.Warn().Err(err).Str("collection", c.Collection).Str("id", c.ID).Msg("Change notification dropped")
	}
}
