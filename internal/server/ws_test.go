package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sjawhar/interview-ai/internal/protocol"
)

type wsFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T, srv *httptest.Server, path string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s failed (status %d): %v", path, status, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f wsFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame failed: %v", err)
	}
	return f
}

func expectFrame(t *testing.T, conn *websocket.Conn, msgType string) wsFrame {
	t.Helper()
	f := readFrame(t, conn)
	if f.Type != msgType {
		t.Fatalf("frame type = %q (%s), want %q", f.Type, f.Data, msgType)
	}
	return f
}

func TestInterviewWebSocketRoundTrip(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	conn := dial(t, srv, "/ws/interview", nil)

	if err := conn.WriteJSON(map[string]any{"type": "start_interview", "data": map[string]any{"session_id": 42}}); err != nil {
		t.Fatalf("write start failed: %v", err)
	}
	f := expectFrame(t, conn, protocol.TypeInterviewStarted)
	if !strings.Contains(string(f.Data), `"42"`) {
		t.Fatalf("started data = %s", f.Data)
	}

	chunk := make([]byte, 640)
	for i := 0; i < 3; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			t.Fatalf("write audio failed: %v", err)
		}
	}
	expectFrame(t, conn, protocol.TypeAudioProcessing)
	for i := 0; i < 3; i++ {
		expectFrame(t, conn, protocol.TypeTranscriptUpdate)
	}

	// A server-side push reaches the interview socket.
	if !env.registry.Broadcast("42", protocol.Pong()) {
		t.Fatal("interview connection not registered")
	}
	expectFrame(t, conn, protocol.TypePong)

	if err := conn.WriteJSON(map[string]any{"type": "get_suggestion", "data": map[string]any{"question": "Why us?"}}); err != nil {
		t.Fatalf("write suggestion failed: %v", err)
	}
	expectFrame(t, conn, protocol.TypeSuggestion)

	if err := conn.WriteJSON(map[string]any{"type": "end_interview"}); err != nil {
		t.Fatalf("write end failed: %v", err)
	}
	expectFrame(t, conn, protocol.TypeInterviewEnded)
	if _, ok := env.registry.Lookup("42"); ok {
		t.Fatal("registry entry should be removed after end_interview")
	}
}

func TestInterviewWebSocketInvalidJSONCloses(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	conn := dial(t, srv, "/ws/interview", nil)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	expectFrame(t, conn, protocol.TypeError)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to close after invalid JSON")
	}
}

func TestEventsWebSocket(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	conn := dial(t, srv, "/ws/events", nil)

	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("write ping failed: %v", err)
	}
	expectFrame(t, conn, protocol.TypePong)

	if err := conn.WriteJSON(map[string]any{"type": "subscribe"}); err != nil {
		t.Fatalf("write subscribe failed: %v", err)
	}
	expectFrame(t, conn, protocol.TypeError)

	if err := conn.WriteJSON(map[string]any{"type": "subscribe", "session_id": "s1"}); err != nil {
		t.Fatalf("write subscribe failed: %v", err)
	}
	expectFrame(t, conn, protocol.TypeSubscribed)

	if !env.registry.Broadcast("s1", protocol.AIFeedback(protocol.EvaluationData{Score: 90, Feedback: "great"})) {
		t.Fatal("broadcast not delivered")
	}
	expectFrame(t, conn, protocol.TypeAIFeedback)

	if err := conn.WriteJSON(map[string]any{"type": "unsubscribe", "session_id": "s1"}); err != nil {
		t.Fatalf("write unsubscribe failed: %v", err)
	}
	expectFrame(t, conn, protocol.TypeUnsubscribed)
	if _, ok := env.registry.Lookup("s1"); ok {
		t.Fatal("session still subscribed")
	}

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	expectFrame(t, conn, protocol.TypeError)

	if err := conn.WriteJSON(map[string]any{"type": "subscribe", "session_id": "s2"}); err != nil {
		t.Fatalf("write subscribe failed: %v", err)
	}
	expectFrame(t, conn, protocol.TypeSubscribed)
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.registry.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("registry len = %d after disconnect", env.registry.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketOriginCheck(t *testing.T) {
	env := newTestEnv(t, Options{AllowedOrigins: []string{"https://app.example"}}, nil)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/interview"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	if err == nil {
		t.Fatal("expected handshake to fail for disallowed origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}

	dial(t, srv, "/ws/interview", http.Header{"Origin": {"https://app.example"}})
}
