package action

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedRecord is returned when a record's text or fields do not match
// the shape required by its kind. Malformed records are never retried.
var ErrMalformedRecord = errors.New("malformed action record")

const wireVersion = 1

// Payload field names as written by producers.
const (
	FieldTaskID          = "taskId"
	FieldTitle           = "title"
	FieldDueDate         = "dueDate"
	FieldTimerType       = "timerType"
	FieldDurationSeconds = "durationSeconds"
)

type wireRecord struct {
	Version   int             `json:"v"`
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	CreatedAt int64           `json:"createdAt"`
	Payload   json.RawMessage `json:"payload"`
}

// Encode returns the durable text form of r. Payloads that Decode would
// reject are refused with ErrMalformedRecord.
func Encode(r Record) (string, error) {
	if r.Payload == nil {
		return "", fmt.Errorf("%w: record %s has no payload", ErrMalformedRecord, r.ID)
	}

	fields := Fields(r.Payload)
	if _, err := FromFields(r.Kind(), fields); err != nil {
		return "", err
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	data, err := json.Marshal(wireRecord{
		Version:   wireVersion,
		ID:        r.ID,
		Kind:      r.Kind(),
		CreatedAt: r.CreatedAt.UnixMilli(),
		Payload:   payload,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}
	return string(data), nil
}

// Decode parses text produced by Encode. Any shape violation, including an id
// that does not match the decoded fields, yields ErrMalformedRecord.
func Decode(text string) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if w.Version != wireVersion {
		return Record{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedRecord, w.Version)
	}
	if w.CreatedAt <= 0 {
		return Record{}, fmt.Errorf("%w: missing createdAt", ErrMalformedRecord)
	}

	fields := map[string]any{}
	if len(w.Payload) > 0 && !bytes.Equal(w.Payload, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(w.Payload))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return Record{}, fmt.Errorf("%w: payload: %v", ErrMalformedRecord, err)
		}
	}

	payload, err := FromFields(w.Kind, fields)
	if err != nil {
		return Record{}, err
	}

	createdAt := time.UnixMilli(w.CreatedAt).UTC()
	if want := DeriveID(payload, createdAt); w.ID != want {
		return Record{}, fmt.Errorf("%w: id %q does not match derived id %q", ErrMalformedRecord, w.ID, want)
	}

	return Record{ID: w.ID, CreatedAt: createdAt, Payload: payload}, nil
}

// Fields flattens a payload into the field map producers send.
func Fields(p Payload) map[string]any {
	switch v := p.(type) {
	case CompleteTask:
		return map[string]any{FieldTaskID: v.TaskID}
	case AddTask:
		m := map[string]any{FieldTitle: v.Title}
		if v.DueDate != nil {
			m[FieldDueDate] = v.DueDate.UTC().Format(time.RFC3339Nano)
		}
		return m
	case StartTimer:
		m := map[string]any{
			FieldTimerType:       v.TimerType,
			FieldDurationSeconds: v.DurationSeconds,
		}
		if v.TaskID != "" {
			m[FieldTaskID] = v.TaskID
		}
		return m
	}
	return map[string]any{}
}

// FromFields validates a loosely-typed field map against the shape required by
// kind and returns the typed payload.
func FromFields(kind Kind, fields map[string]any) (Payload, error) {
	switch kind {
	case KindCompleteTask:
		taskID, err := requiredString(fields, FieldTaskID)
		if err != nil {
			return nil, err
		}
		return CompleteTask{TaskID: taskID}, nil

	case KindAddTask:
		title, err := requiredString(fields, FieldTitle)
		if err != nil {
			return nil, err
		}
		p := AddTask{Title: title}
		if raw, ok := fields[FieldDueDate]; ok && raw != nil {
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be a string", ErrMalformedRecord, FieldDueDate)
			}
			due, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, FieldDueDate, err)
			}
			due = due.UTC()
			p.DueDate = &due
		}
		return p, nil

	case KindStartTimer:
		timerType, err := requiredString(fields, FieldTimerType)
		if err != nil {
			return nil, err
		}
		duration, err := requiredInt(fields, FieldDurationSeconds)
		if err != nil {
			return nil, err
		}
		if duration <= 0 {
			return nil, fmt.Errorf("%w: %s must be positive", ErrMalformedRecord, FieldDurationSeconds)
		}
		p := StartTimer{TimerType: timerType, DurationSeconds: duration}
		if raw, ok := fields[FieldTaskID]; ok && raw != nil {
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be a string", ErrMalformedRecord, FieldTaskID)
			}
			p.TaskID = s
		}
		return p, nil
	}

	return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedRecord, kind)
}

func requiredString(fields map[string]any, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedRecord, name)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrMalformedRecord, name, raw)
	}
	if s == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrMalformedRecord, name)
	}
	return s, nil
}

func requiredInt(fields map[string]any, name string) (int, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedRecord, name)
	}

	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%w: %s must be a whole number", ErrMalformedRecord, name)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be a whole number", ErrMalformedRecord, name)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("%w: %s must be numeric, got %T", ErrMalformedRecord, name, raw)
}
