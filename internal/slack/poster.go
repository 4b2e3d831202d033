// Package slack posts clinician handoff reports after a consultation reaches
// its summary.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/medbot/internal/memory"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// HandoffReport is what a clinician sees when a consultation is summarised.
type HandoffReport struct {
	SessionID string
	Turn      int
	Narrative string
	Patient   memory.PatientSummary
}

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostHandoff posts the structured summary and threads the model narrative
// under it. Returns the message timestamp (ts) of the parent message.
func (p *Poster) PostHandoff(ctx context.Context, report HandoffReport) (string, error) {
	text := formatHandoffMessage(report)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "Automated intake summary. Not a diagnosis.",
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}

	p.logger.Info("posted handoff to slack", "ts", ts, "session_id", report.SessionID, "turn", report.Turn)

	if report.Narrative != "" {
		if err := p.PostThread(ctx, ts, report.Narrative); err != nil {
			p.logger.Warn("failed to thread narrative", "ts", ts, "error", err)
		}
	}
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatHandoffMessage(r HandoffReport) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Consultation:* %s (turn %d)\n\n", r.SessionID, r.Turn)

	writeList(&sb, "Key symptoms", r.Patient.KeySymptoms)
	writeList(&sb, "Timeline", r.Patient.TimelineInfo)
	writeList(&sb, "Medications", r.Patient.Medications)
	writeList(&sb, "Allergies", r.Patient.Allergies)

	if len(r.Patient.SeverityScores) > 0 {
		keys := make([]string, 0, len(r.Patient.SeverityScores))
		for k := range r.Patient.SeverityScores {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		scores := make([]string, len(keys))
		for i, k := range keys {
			scores[i] = fmt.Sprintf("%d/10", r.Patient.SeverityScores[k])
		}
		fmt.Fprintf(&sb, "*Reported severity:* %s\n", strings.Join(scores, ", "))
	}

	if len(r.Patient.KeySymptoms)+len(r.Patient.TimelineInfo)+len(r.Patient.Medications)+
		len(r.Patient.Allergies)+len(r.Patient.SeverityScores) == 0 {
		sb.WriteString("_No structured details captured in this consultation._")
	}

	return sb.String()
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "*%s:*\n", label)
	for _, it := range items {
		fmt.Fprintf(sb, "• %s\n", it)
	}
	sb.WriteString("\n")
}
