package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MikeSquared-Agency/medbot/internal/consultation"
)

const (
	wsIdleTimeout  = 10 * time.Minute
	wsWriteTimeout = 10 * time.Second
)

// sessionWS serves one consultation over a websocket. Frames are handled in
// order on the read loop, which is also the only writer.
func (s *Server) sessionWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.logger.Info("websocket connected", "session_id", sess.ID())

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))

	if err := s.writeFrame(conn, s.historyFrameFor(sess, nil)); err != nil {
		return
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.countWS("inbound", "invalid")
			if s.writeFrame(conn, errorFrame{Type: frameError, Code: "invalid_client_message", Detail: err.Error()}) != nil {
				break
			}
			continue
		}
		s.countWS("inbound", frame.Type)

		var out any
		switch frame.Type {
		case frameTurn:
			if _, err := sess.HandleTurn(r.Context(), frame.Text); err != nil && !errors.Is(err, consultation.ErrEmptyInput) {
				out = errorFrame{Type: frameError, Code: "turn_failed", Detail: err.Error()}
				break
			}
			out = s.historyFrameFor(sess, nil)
		case frameReset:
			history, _ := sess.Reset()
			out = s.historyFrameFor(sess, history)
		default:
			out = errorFrame{Type: frameError, Code: "unknown_frame_type", Detail: frame.Type}
		}
		if err := s.writeFrame(conn, out); err != nil {
			break
		}
	}

	s.logger.Info("websocket disconnected", "session_id", sess.ID())
}

func (s *Server) historyFrameFor(sess *consultation.Session, history []consultation.Exchange) historyFrame {
	turns, snap, _ := sess.Snapshot()
	if history == nil {
		history = snap
	}
	return historyFrame{
		Type:      frameHistory,
		SessionID: sess.ID(),
		TurnCount: turns,
		Phase:     consultation.PhaseOf(turns),
		History:   history,
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, frame any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		return err
	}
	switch f := frame.(type) {
	case historyFrame:
		s.countWS("outbound", f.Type)
	case errorFrame:
		s.countWS("outbound", f.Type)
	}
	return nil
}

func (s *Server) countWS(direction, frameType string) {
	if s.metrics == nil {
		return
	}
	switch frameType {
	case frameTurn, frameReset, frameHistory, frameError:
	default:
		frameType = "other"
	}
	s.metrics.WSMessages.WithLabelValues(direction, frameType).Inc()
}

// sameOrigin allows non-browser clients and browser pages served from the
// same host.
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
