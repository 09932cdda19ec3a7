package action

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	due := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	at := time.Date(2026, 3, 14, 9, 30, 0, 123_456_789, time.UTC)

	tests := []struct {
		name    string
		payload Payload
	}{
		{"complete", CompleteTask{TaskID: "task-1"}},
		{"add", AddTask{Title: "Buy milk"}},
		{"add with due date", AddTask{Title: "Pay rent", DueDate: &due}},
		{"timer", StartTimer{TimerType: "laundry", DurationSeconds: 2700}},
		{"timer for task", StartTimer{TimerType: "cooking", DurationSeconds: 600, TaskID: "task-9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := New(tt.payload, at)

			text, err := Encode(rec)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			got, err := Decode(text)
			if err != nil {
				t.Fatalf("Decode(%s): %v", text, err)
			}

			if diff := cmp.Diff(rec, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNew_TruncatesToMillis(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 999_999_999, time.UTC)
	rec := New(AddTask{Title: "x"}, at)

	if rec.CreatedAt.Nanosecond() != 999_000_000 {
		t.Errorf("CreatedAt nanos = %d, want 999000000", rec.CreatedAt.Nanosecond())
	}
}

func TestDeriveID_Deterministic(t *testing.T) {
	at := time.UnixMilli(100)

	a := New(AddTask{Title: "Buy milk"}, at)
	b := New(AddTask{Title: "Buy milk"}, at)
	if a.ID != b.ID {
		t.Errorf("same action produced ids %s and %s", a.ID, b.ID)
	}

	if c := New(AddTask{Title: "Buy milk"}, at.Add(time.Millisecond)); c.ID == a.ID {
		t.Error("different createdAt should produce a different id")
	}
	if d := New(AddTask{Title: "Buy bread"}, at); d.ID == a.ID {
		t.Error("different title should produce a different id")
	}
	if e := New(CompleteTask{TaskID: "Buy milk"}, at); e.ID == a.ID {
		t.Error("different kind should produce a different id")
	}
}

func TestDecode_Malformed(t *testing.T) {
	valid := New(StartTimer{TimerType: "laundry", DurationSeconds: 60}, time.UnixMilli(1000))
	validText, err := Encode(valid)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	tests := []struct {
		name string
		text string
	}{
		{"not json", "complete_task:abc:100"},
		{"wrong version", `{"v":2,"id":"x","kind":"add_task","createdAt":1,"payload":{"title":"a"}}`},
		{"unknown kind", `{"v":1,"id":"x","kind":"water_plants","createdAt":1,"payload":{}}`},
		{"missing title", `{"v":1,"id":"x","kind":"add_task","createdAt":1,"payload":{}}`},
		{"title wrong type", `{"v":1,"id":"x","kind":"add_task","createdAt":1,"payload":{"title":5}}`},
		{"non-numeric duration", `{"v":1,"id":"x","kind":"start_timer","createdAt":1,"payload":{"timerType":"laundry","durationSeconds":"soon"}}`},
		{"fractional duration", `{"v":1,"id":"x","kind":"start_timer","createdAt":1,"payload":{"timerType":"laundry","durationSeconds":1.5}}`},
		{"zero duration", `{"v":1,"id":"x","kind":"start_timer","createdAt":1,"payload":{"timerType":"laundry","durationSeconds":0}}`},
		{"bad due date", `{"v":1,"id":"x","kind":"add_task","createdAt":1,"payload":{"title":"a","dueDate":"tomorrow"}}`},
		{"missing createdAt", `{"v":1,"id":"x","kind":"complete_task","payload":{"taskId":"t"}}`},
		{"tampered id", strings.Replace(validText, valid.ID, "00000000-0000-0000-0000-000000000000", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.text)
			if !errors.Is(err, ErrMalformedRecord) {
				t.Errorf("Decode error = %v, want ErrMalformedRecord", err)
			}
		})
	}
}

func TestFromFields_JSONNumbers(t *testing.T) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(`{"timerType":"laundry","durationSeconds":2700}`), &fields); err != nil {
		t.Fatal(err)
	}

	p, err := FromFields(KindStartTimer, fields)
	if err != nil {
		t.Fatalf("FromFields: %v", err)
	}
	timer, ok := p.(StartTimer)
	if !ok {
		t.Fatalf("payload type = %T, want StartTimer", p)
	}
	if timer.DurationSeconds != 2700 {
		t.Errorf("DurationSeconds = %d, want 2700", timer.DurationSeconds)
	}
}

func TestEncode_NilPayload(t *testing.T) {
	if _, err := Encode(Record{ID: "x"}); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("Encode(nil payload) error = %v, want ErrMalformedRecord", err)
	}
}

func TestEncode_RejectsInvalidPayload(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	payloads := []Payload{
		CompleteTask{},
		AddTask{Title: ""},
		StartTimer{TimerType: "laundry", DurationSeconds: -1},
		StartTimer{DurationSeconds: 60},
	}

	for _, p := range payloads {
		if _, err := Encode(New(p, at)); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("Encode(%#v) error = %v, want ErrMalformedRecord", p, err)
		}
	}
}

func TestKind_Valid(t *testing.T) {
	for _, k := range []Kind{KindCompleteTask, KindAddTask, KindStartTimer} {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if Kind("sync_tasks").Valid() {
		t.Error("sync_tasks is a trigger, not an action kind")
	}
}
