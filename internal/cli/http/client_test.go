package httpclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpclient "algojudge/internal/cli/http"

	"github.com/gorilla/websocket"
)

func TestDoSendsJSONBody(t *testing.T) {
	var gotMethod, gotPath, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"code":10000}`))
	}))
	defer srv.Close()

	client := httpclient.New(srv.URL+"/", time.Second)
	resp, err := client.Do(context.Background(), http.MethodPost, "/api/v1/judge/run", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted || string(resp.Body) != `{"code":10000}` {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, resp.Body)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/v1/judge/run" || gotType != "application/json" || gotBody != `{"a":1}` {
		t.Fatalf("unexpected request %s %s %s %s", gotMethod, gotPath, gotType, gotBody)
	}
}

func TestWatchReadsUntilNormalClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range []string{`{"state":"Running"}`, `{"state":"Completed"}`} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "judging finished")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		// Wait for the client to answer the close.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	client := httpclient.New(srv.URL, time.Second)
	var frames []string
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := client.Watch(ctx, "/watch", func(frame []byte) {
		frames = append(frames, string(frame))
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if len(frames) != 2 || frames[1] != `{"state":"Completed"}` {
		t.Fatalf("unexpected frames %v", frames)
	}
}

func TestWatchHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := httpclient.New(srv.URL, time.Second)
	if err := client.Watch(context.Background(), "/watch", func([]byte) {}); err == nil {
		t.Fatalf("expected handshake error")
	}
}
