package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mercator-hq/tracker/pkg/telemetry/logging"
	"mercator-hq/tracker/pkg/tracking"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long the peer may stay silent.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound control messages.
	maxMessageSize = 64 << 10

	// replyBuffer is the number of replies queued for the writer.
	replyBuffer = 16
)

// session is one control WebSocket client.
type session struct {
	conn    *websocket.Conn
	sub     *tracking.Subscriber
	replies chan tracking.Event
	done    chan struct{}

	// writerDone is closed when writeLoop returns.
	writerDone chan struct{}
}

// handleWebSocket upgrades to the control channel. Inbound messages are
// dispatched to the control plane; replies and project broadcasts share one
// writer.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	hub := s.opts.Control.Hub()
	sess := &session{
		conn:    conn,
		sub:     hub.Subscribe(uuid.NewString()),
		replies:    make(chan tracking.Event, replyBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}

	// The request context ends when this handler returns, not when the
	// connection does.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	ctx = logging.WithSession(ctx, sess.sub.ID)
	logger := s.logger.With("session_id", sess.sub.ID)
	logger.Info("control client connected", "remote_addr", r.RemoteAddr)

	go func() {
		defer close(sess.writerDone)
		s.writeLoop(sess)
	}()

	s.readLoop(ctx, sess)

	cancel()
	close(sess.done)
	hub.Unsubscribe(sess.sub)
	<-sess.writerDone
	conn.Close()

	logger.Info("control client disconnected")
}

// readLoop dispatches inbound envelopes until the connection fails or the
// writer has gone.
func (s *Server) readLoop(ctx context.Context, sess *session) {
	sess.conn.SetReadLimit(maxMessageSize)
	sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Warn("control channel read failed", "session_id", sess.sub.ID, "error", err)
			}
			return
		}

		var env tracking.Envelope
		var reply *tracking.Event
		if err := json.Unmarshal(data, &env); err != nil || env.Name == "" {
			reply = &tracking.Event{
				Name: tracking.EventTrackingError,
				Data: tracking.ErrorPayload{Error: true, Message: "invalid message: expected {\"event\": ..., \"data\": ...}"},
			}
		} else {
			reply = s.opts.Control.Handle(ctx, sess.sub, env)
		}
		if reply == nil {
			continue
		}

		select {
		case sess.replies <- *reply:
		case <-sess.writerDone:
			return
		case <-sess.done:
			return
		}
	}
}

// writeLoop sends replies, broadcasts and pings. A write failure closes the
// connection, which ends readLoop.
func (s *Server) writeLoop(sess *session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var ev tracking.Event
		select {
		case ev = <-sess.replies:
		case e, ok := <-sess.sub.C:
			if !ok {
				s.closeGracefully(sess.conn)
				return
			}
			ev = e
		case <-ticker.C:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sess.conn.Close()
				return
			}
			continue
		case <-sess.done:
			s.closeGracefully(sess.conn)
			return
		}

		sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sess.conn.WriteJSON(ev); err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				s.logger.Debug("control channel write failed", "session_id", sess.sub.ID, "error", err)
			}
			sess.conn.Close()
			return
		}
	}
}

// closeGracefully sends a close frame; errors mean the peer is gone.
func (s *Server) closeGracefully(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
