package mq

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestKafkaMessageHeaders(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := &Message{
		ID:         "42",
		Body:       []byte(`{"submission_id":"42"}`),
		Headers:    map[string]string{"event": "judge.final"},
		Timestamp:  ts,
		RetryCount: 1,
		MaxRetries: 2,
	}
	km := toKafkaMessage("judge.status", in)
	if km.Topic != "judge.status" || string(km.Key) != "42" {
		t.Fatalf("unexpected routing: topic=%q key=%q", km.Topic, km.Key)
	}

	out := fromKafkaMessage(km)
	if out.ID != "42" || out.RetryCount != 1 || out.MaxRetries != 2 {
		t.Fatalf("metadata lost: %+v", out)
	}
	if !out.Timestamp.Equal(ts) {
		t.Fatalf("timestamp = %v, want %v", out.Timestamp, ts)
	}
	if out.Headers["event"] != "judge.final" {
		t.Fatalf("custom header lost: %v", out.Headers)
	}
	if _, ok := out.Headers[headerID]; ok {
		t.Fatal("reserved header leaked into custom headers")
	}
}

func TestFromKafkaMessageFallsBackToKey(t *testing.T) {
	out := fromKafkaMessage(kafka.Message{Key: []byte("7"), Value: []byte("{}")})
	if out.ID != "7" {
		t.Fatalf("ID = %q, want key fallback", out.ID)
	}
}

func TestSubscribeOptionsDefaults(t *testing.T) {
	opts := SubscribeOptions{MaxRetries: -1}
	opts.SetDefaults()
	if opts.MaxRetries != 0 || opts.Concurrency != 1 || opts.RetryDelay != time.Second {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
}
