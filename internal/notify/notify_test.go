package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/xtxerr/medallion/internal/fingerprint"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func sampleMessage() RunMessage {
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	return RunMessage{
		RunID:      "0190c5a8-0000-7000-8000-000000000001",
		Status:     StatusSuccess,
		Driver:     "duckdb",
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Rows:       map[string]int{"gold.hourly_patterns": 3},
		Tables: map[string]fingerprint.Fingerprint{
			"gold.hourly_patterns": {Table: "gold.hourly_patterns", Rows: 3, Hash: "00000000000000ff"},
		},
	}
}

func TestEncode(t *testing.T) {
	m := sampleMessage()
	msg, err := m.Encode("medallion.runs")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if msg.Topic != "medallion.runs" || string(msg.Key) != m.RunID {
		t.Errorf("topic/key = %q/%q", msg.Topic, msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != StatusSuccess {
		t.Errorf("headers = %+v", msg.Headers)
	}

	var got RunMessage
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Tables["gold.hourly_patterns"].Hash != "00000000000000ff" {
		t.Errorf("tables = %+v", got.Tables)
	}
	if _, ok := got.Rows["gold.hourly_patterns"]; !ok {
		t.Errorf("rows = %+v", got.Rows)
	}
}

func TestKafkaNotify(t *testing.T) {
	w := &fakeWriter{}
	n := newKafka(w, Config{Topic: "runs", Timeout: time.Second})

	if err := n.Notify(context.Background(), sampleMessage()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(w.msgs) != 1 || w.msgs[0].Topic != "runs" {
		t.Fatalf("msgs = %+v", w.msgs)
	}
	if err := n.Close(); err != nil || !w.closed {
		t.Errorf("Close: %v closed=%v", err, w.closed)
	}
}

func TestKafkaNotifyError(t *testing.T) {
	boom := errors.New("broker down")
	n := newKafka(&fakeWriter{err: boom}, Config{Topic: "runs"})

	err := n.Notify(context.Background(), sampleMessage())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped broker error", err)
	}
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	if err := n.Notify(context.Background(), sampleMessage()); err != nil {
		t.Error(err)
	}
}
