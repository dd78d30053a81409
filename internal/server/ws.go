package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sjawhar/interview-ai/internal/interview"
	"github.com/sjawhar/interview-ai/internal/logging"
	"github.com/sjawhar/interview-ai/internal/protocol"
)

const (
	writeWait    = 10 * time.Second
	maxFrameSize = 8 << 20
)

func registerWSRoutes(mux *http.ServeMux, s *server) {
	mux.HandleFunc("GET /ws/interview", s.handleInterviewWS)
	mux.HandleFunc("GET /ws/events", s.handleEventsWS)
}

func (s *server) handleInterviewWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("ws upgrade")
		return
	}

	deps := interview.Deps{
		Transcriber: s.deps.Transcriber,
		Generator:   s.deps.Generator,
		Registry:    s.deps.Registry,
		History:     s.deps.Store,
		Publisher:   s.deps.Publisher,
		Metrics:     s.deps.Metrics,
	}
	if s.deps.NewRecorder != nil {
		deps.Recorder = s.deps.NewRecorder()
	}

	connID := uuid.NewString()
	c := interview.New(connID, newWSConn(conn), s.opts.Interview, deps)
	if err := c.Run(r.Context()); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Str("conn_id", connID).Msg("interview connection ended")
	}
}

// eventsMessage is a control frame on /ws/events. session_id sits at the top
// level of the envelope.
type eventsMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// handleEventsWS lets a client follow a session's pushes (ai_feedback,
// interview_summary) without running an interview on the socket.
func (s *server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("ws upgrade")
		return
	}
	ws := newWSConn(conn)
	connID := uuid.NewString()
	logger := logging.WithConnection("events", connID)
	s.deps.Metrics.ConnectionOpened()

	defer func() {
		n := s.deps.Registry.RemoveConn(ws)
		_ = ws.Close()
		s.deps.Metrics.ConnectionClosed()
		logger.Debug().Int("subscriptions", n).Msg("events connection closed")
	}()

	reply := func(msg protocol.Message) bool {
		payload, err := msg.Encode()
		if err != nil {
			return false
		}
		if err := ws.Send(payload); err != nil {
			return false
		}
		s.deps.Metrics.Outbound(msg.Type)
		return true
	}

	for {
		f, err := ws.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug().Err(err).Msg("read events frame")
			}
			return
		}

		var msg eventsMessage
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			s.deps.Metrics.Inbound("invalid")
			if !reply(protocol.Error(protocol.CodeInvalidMessage, "invalid JSON", nil)) {
				return
			}
			continue
		}
		s.deps.Metrics.Inbound(msg.Type)
		id := strings.TrimSpace(msg.SessionID)

		var out protocol.Message
		switch msg.Type {
		case "ping":
			out = protocol.Pong()
		case "subscribe":
			if id == "" {
				out = protocol.Error(protocol.CodeMissingField, "session_id is required", nil)
				break
			}
			s.deps.Registry.Subscribe(id, ws)
			logger.Debug().Str("session_id", id).Msg("subscribed")
			out = protocol.Subscribed(id)
		case "unsubscribe":
			if id == "" {
				out = protocol.Error(protocol.CodeMissingField, "session_id is required", nil)
				break
			}
			s.deps.Registry.UnsubscribeConn(id, ws)
			out = protocol.Unsubscribed(id)
		default:
			out = protocol.Error(protocol.CodeUnknownMessageType, "unknown message type: "+msg.Type, nil)
		}
		if !reply(out) {
			return
		}
	}
}

// wsConn adapts a gorilla connection to interview.Transport and
// registry.Conn. Writes are serialized; gorilla allows one concurrent reader
// and one concurrent writer.
type wsConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	conn.SetReadLimit(maxFrameSize)
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadFrame() (interview.Frame, error) {
	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return interview.Frame{}, io.EOF
		}
		return interview.Frame{}, err
	}
	return interview.Frame{Binary: mt == websocket.BinaryMessage, Data: data}, nil
}

func (c *wsConn) WriteFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Send implements registry.Conn.
func (c *wsConn) Send(data []byte) error {
	return c.WriteFrame(data)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
