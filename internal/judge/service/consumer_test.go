package service_test

import (
	"context"
	"testing"
	"time"

	"algojudge/internal/common/mq"
	"algojudge/internal/judge/sandbox"
	"algojudge/internal/judge/sandbox/result"
	"algojudge/internal/judge/service"
)

func TestHandleMessageJudgesSubmission(t *testing.T) {
	h := newHarness(t, nil)
	msg := mq.NewMessage("s1", []byte(`{"submission_id":"s1"}`))
	if err := h.svc.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(h.repo.savedOutcomes()) != 1 {
		t.Fatal("task did not produce a verdict")
	}
}

func TestHandleMessageDropsBadPayloads(t *testing.T) {
	h := newHarness(t, nil)
	for _, body := range []string{`not json`, `{}`, `{"submission_id":"missing"}`} {
		if err := h.svc.HandleMessage(context.Background(), mq.NewMessage("x", []byte(body))); err != nil {
			t.Fatalf("body %q should be dropped, got %v", body, err)
		}
	}
	if err := h.svc.HandleMessage(context.Background(), nil); err != nil {
		t.Fatalf("nil message: %v", err)
	}
}

func TestHandleMessageRetriesWhenQueueFull(t *testing.T) {
	h := newHarness(t, func(cfg *service.Config) {
		cfg.WorkerPoolSize = 1
		cfg.QueueWait = 20 * time.Millisecond
	})
	started := make(chan struct{})
	unblock := make(chan struct{})
	h.exec.fn = func(ctx context.Context, req sandbox.JudgeRequest) (result.JudgeResult, error) {
		close(started)
		<-unblock
		return acceptAll(req), nil
	}
	go func() {
		_, _ = h.svc.Execute(context.Background(), service.ExecuteRequest{Language: "python", Code: "x"})
	}()
	<-started
	err := h.svc.HandleMessage(context.Background(), mq.NewMessage("s1", []byte(`{"submission_id":"s1"}`)))
	close(unblock)
	if err == nil {
		t.Fatal("expected queue-full error so the task is redelivered")
	}
}
