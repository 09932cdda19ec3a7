// Package action defines the user actions captured by out-of-process surfaces
// (widget taps, launcher shortcuts, voice intents) and their durable text form.
//
// A Record is a tagged variant: the Payload's concrete type decides its Kind.
// Record ids are derived from the kind, the key payload fields and the creation
// time, so a surface that re-delivers the same logical action produces the same
// id and the queue can drop the duplicate.
package action

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind tags the variant carried by a Record.
type Kind string

const (
	KindCompleteTask Kind = "complete_task"
	KindAddTask      Kind = "add_task"
	KindStartTimer   Kind = "start_timer"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCompleteTask, KindAddTask, KindStartTimer:
		return true
	}
	return false
}

// idNamespace scopes derived record ids.
var idNamespace = uuid.MustParse("6f1c3c4e-7b1a-5d2e-9a0c-2f4b8e1d5a73")

// Payload is implemented by CompleteTask, AddTask and StartTimer.
type Payload interface {
	Kind() Kind
	// keyFields returns the fields that identify the logical action.
	keyFields() []string
}

// CompleteTask marks an existing task as done.
type CompleteTask struct {
	TaskID string
}

// AddTask creates a task. The authoritative store allocates its id.
type AddTask struct {
	Title   string
	DueDate *time.Time
}

// StartTimer starts a household timer (laundry, cooking, ...).
type StartTimer struct {
	TimerType       string
	DurationSeconds int
	TaskID          string
}

func (CompleteTask) Kind() Kind { return KindCompleteTask }
func (AddTask) Kind() Kind      { return KindAddTask }
func (StartTimer) Kind() Kind   { return KindStartTimer }

func (p CompleteTask) keyFields() []string { return []string{p.TaskID} }
func (p AddTask) keyFields() []string      { return []string{p.Title} }
func (p StartTimer) keyFields() []string {
	return []string{p.TimerType, strconv.Itoa(p.DurationSeconds)}
}

// Record is one queued user action.
type Record struct {
	ID        string
	CreatedAt time.Time
	Payload   Payload
}

// Kind returns the tag of the record's payload.
func (r Record) Kind() Kind {
	if r.Payload == nil {
		return ""
	}
	return r.Payload.Kind()
}

// New builds a record for payload created at createdAt. The timestamp is
// truncated to milliseconds so the record survives Encode/Decode unchanged.
func New(payload Payload, createdAt time.Time) Record {
	createdAt = createdAt.Truncate(time.Millisecond).UTC()
	return Record{
		ID:        DeriveID(payload, createdAt),
		CreatedAt: createdAt,
		Payload:   payload,
	}
}

// DeriveID computes the deterministic id for payload at createdAt.
func DeriveID(payload Payload, createdAt time.Time) string {
	parts := append([]string{string(payload.Kind())}, payload.keyFields()...)
	parts = append(parts, strconv.FormatInt(createdAt.UnixMilli(), 10))
	return uuid.NewSHA1(idNamespace, []byte(strings.Join(parts, "\x00"))).String()
}
