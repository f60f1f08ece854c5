// Package cdc holds the change records flowing through the dispatcher: row
// mutations as they arrive from the replication stream and the per-topic
// events built from their cells.
package cdc

// Cell is one family/qualifier/value/timestamp unit of a row mutation.
type Cell struct {
	Family    []byte `json:"family"`
	Qualifier []byte `json:"qualifier"`
	Value     []byte `json:"value,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Mutation is a change to a single row. Delete is set for deletions; every
// cell of a deletion is published with the delete flag.
type Mutation struct {
	Row    []byte `json:"row"`
	Delete bool   `json:"delete,omitempty"`
	Cells  []Cell `json:"cells"`
}

// Event is the record published for one (cell, topic) pair.
type Event struct {
	Key       []byte `json:"key"`
	Table     []byte `json:"table"`
	Family    []byte `json:"family"`
	Qualifier []byte `json:"qualifier"`
	Value     []byte `json:"value,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Delete    bool   `json:"delete"`
}

// MutationBuilder helps construct mutations with a shared default timestamp
type MutationBuilder struct {
	mutation  Mutation
	timestamp int64
}

// NewPut starts a put mutation for row.
func NewPut(row []byte, timestamp int64) *MutationBuilder {
	return &MutationBuilder{
		mutation:  Mutation{Row: row},
		timestamp: timestamp,
	}
}

// NewDelete starts a delete mutation for row.
func NewDelete(row []byte, timestamp int64) *MutationBuilder {
	return &MutationBuilder{
		mutation:  Mutation{Row: row, Delete: true},
		timestamp: timestamp,
	}
}

// AddColumn adds a cell stamped with the builder's timestamp.
func (b *MutationBuilder) AddColumn(family, qualifier, value []byte) *MutationBuilder {
	return b.AddCell(Cell{Family: family, Qualifier: qualifier, Value: value, Timestamp: b.timestamp})
}

func (b *MutationBuilder) AddCell(c Cell) *MutationBuilder {
	b.mutation.Cells = append(b.mutation.Cells, c)
	return b
}

func (b *MutationBuilder) Build() Mutation {
	return b.mutation
}

// EventBuilder helps construct events
type EventBuilder struct {
	event Event
}

func NewEventBuilder() *EventBuilder {
	return &EventBuilder{}
}

func (b *EventBuilder) WithKey(key []byte) *EventBuilder {
	b.event.Key = key
	return b
}

func (b *EventBuilder) WithTable(table []byte) *EventBuilder {
	b.event.Table = table
	return b
}

// WithCell copies the cell coordinates, value and timestamp.
func (b *EventBuilder) WithCell(c Cell) *EventBuilder {
	b.event.Family = c.Family
	b.event.Qualifier = c.Qualifier
	b.event.Value = c.Value
	b.event.Timestamp = c.Timestamp
	return b
}

func (b *EventBuilder) WithDelete(isDelete bool) *EventBuilder {
	b.event.Delete = isDelete
	return b
}

func (b *EventBuilder) Build() Event {
	return b.event
}
