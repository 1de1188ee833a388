// Package model holds the wire and storage shapes shared by every layer of
// the event plane: the event record, its durable outbox form, the sequence
// counter, and the per-client checkpoint.
package model

import (
	"encoding/json"
	"time"
)

// Recognized event type vocabulary (spec.md §6).
const (
	EventTypeMessage      = "message"
	EventTypeNotification = "notification"
	EventTypeDataUpdate   = "dataUpdate"
	EventTypeAlert        = "alert"
	EventTypeHeartbeat    = "heartbeat"
	EventTypeConnected    = "connected"
)

// filterAliases maps historical filter spellings to the current event type
// they should match. Applied once, when a filter string is parsed at
// connect time.
var filterAliases = map[string]string{
	"update": EventTypeDataUpdate,
}

// ResolveFilterAlias applies the historical alias table to a raw filter
// string presented by a client.
func ResolveFilterAlias(filter string) string {
	if alias, ok := filterAliases[filter]; ok {
		return alias
	}
	return filter
}

// Event is the in-flight event record: what the Publisher builds and the
// Dispatcher routes. Seq is zero until the Sequence Allocator assigns it.
type Event struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
	Seq    int64           `json:"seq"`
	Target string          `json:"target,omitempty"`
}

// IsBroadcast reports whether this event has no specific target client.
func (e Event) IsBroadcast() bool {
	return e.Target == ""
}

// OutboxEntry is what the Outbox Store persists: the event plus the
// bookkeeping fields from the persisted schema in spec.md §6. Entries are
// immutable once written; ProcessedAt/ProcessedBy are decorative per
// spec.md §9 and are not consulted by the Poller.
type OutboxEntry struct {
	EventID         string          `bson:"EventId"`
	SequenceNumber  int64           `bson:"SequenceNumber"`
	EventType       string          `bson:"EventType"`
	EventData       json.RawMessage `bson:"EventData"`
	TargetClientID  string          `bson:"TargetClientId,omitempty"`
	CreatedAt       time.Time       `bson:"CreatedAt"`
	ProcessedAt     *time.Time      `bson:"ProcessedAt,omitempty"`
	ProcessedBy     string          `bson:"ProcessedBy,omitempty"`
	Ttl             time.Time       `bson:"Ttl"`
}

// Event converts a persisted outbox entry back into the in-flight record
// the Dispatcher and Stream Engine operate on.
func (e OutboxEntry) Event() Event {
	return Event{
		ID:     e.EventID,
		Type:   e.EventType,
		Data:   e.EventData,
		Seq:    e.SequenceNumber,
		Target: e.TargetClientID,
	}
}

// Checkpoint is the persisted per-client record of the highest seq that has
// been written to that client's byte stream.
type Checkpoint struct {
	ClientID       string    `bson:"ClientId"`
	LastSequenceNo int64     `bson:"LastSequenceNumber"`
	LastEventID    string    `bson:"LastEventId,omitempty"`
	CreatedAt      time.Time `bson:"CreatedAt"`
	UpdatedAt      time.Time `bson:"UpdatedAt"`
}
