package api

import "github.com/MikeSquared-Agency/medbot/internal/consultation"

type createSessionResponse struct {
	SessionID string                  `json:"session_id"`
	History   []consultation.Exchange `json:"history"`
}

type sessionResponse struct {
	SessionID string                  `json:"session_id"`
	TurnCount int                     `json:"turn_count"`
	Phase     consultation.Phase      `json:"phase"`
	History   []consultation.Exchange `json:"history"`
}

type turnRequest struct {
	Text string `json:"text"`
}

// turnResponse clears the input box and returns the updated history.
type turnResponse struct {
	Input     string                  `json:"input"`
	History   []consultation.Exchange `json:"history"`
	Reply     string                  `json:"reply,omitempty"`
	Phase     consultation.Phase      `json:"phase"`
	TurnCount int                     `json:"turn_count"`
	Failed    bool                    `json:"failed,omitempty"`
	Skipped   bool                    `json:"skipped,omitempty"`
}

type resetResponse struct {
	History []consultation.Exchange `json:"history"`
	Input   string                  `json:"input"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Websocket frames.
const (
	frameTurn    = "turn"
	frameReset   = "reset"
	frameHistory = "history"
	frameError   = "error"
)

type clientFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type historyFrame struct {
	Type      string                  `json:"type"`
	SessionID string                  `json:"session_id"`
	TurnCount int                     `json:"turn_count"`
	Phase     consultation.Phase      `json:"phase"`
	History   []consultation.Exchange `json:"history"`
	Input     string                  `json:"input"`
}

type errorFrame struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}
