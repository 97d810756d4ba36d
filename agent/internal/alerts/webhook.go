package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/obsidianstack/detqc/agent/internal/quality"
)

// deliver sends a to all configured targets.
// Errors are logged but do not affect the caller.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var body []byte
		switch wh.Type {
		case "slack":
			body = slackPayload(a)
		case "teams":
			body = teamsPayload(a)
		case "http":
			body, _ = json.Marshal(map[string]*Alert{"alert": a})
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := e.post(url, body); err != nil {
			slog.Error("alerts: webhook delivery failed", "type", wh.Type, "metric", a.Metric, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "metric", a.Metric, "state", a.State)
	}
}

// slackPayload renders a as a legacy attachment so the verdict colour shows
// as the side bar of the message.
func slackPayload(a *Alert) []byte {
	fields := []map[string]any{
		{"title": "Quality", "value": a.Quality.String(), "short": true},
	}
	if s := statisticText(a); s != "" {
		fields = append(fields, map[string]any{"title": "Statistic", "value": s, "short": true})
	}
	body, _ := json.Marshal(map[string]any{
		"text": fmt.Sprintf("*%s* %s", stateLabel(a), a.Message),
		"attachments": []map[string]any{{
			"color":  colorHex(a.Color),
			"title":  title(a),
			"text":   strings.Join(a.Details, "\n"),
			"fields": fields,
			"ts":     eventTime(a).Unix(),
		}},
	})
	return body
}

func teamsPayload(a *Alert) []byte {
	facts := []map[string]string{
		{"name": "Metric", "value": a.Metric},
		{"name": "Quality", "value": a.Quality.String()},
	}
	if a.Kind != "" {
		facts = append(facts, map[string]string{"name": "Check", "value": string(a.Kind)})
	}
	if s := statisticText(a); s != "" {
		facts = append(facts, map[string]string{"name": "Statistic", "value": s})
	}
	facts = append(facts, map[string]string{"name": "At", "value": eventTime(a).UTC().Format(time.RFC3339)})

	body, _ := json.Marshal(map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": strings.TrimPrefix(colorHex(a.Color), "#"),
		"summary":    a.Metric,
		"title":      title(a),
		"text":       strings.Join(a.Details, "<br>"),
		"sections":   []map[string]any{{"facts": facts}},
	})
	return body
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func title(a *Alert) string {
	return fmt.Sprintf("Data quality %s: %s", a.State, a.Metric)
}

func statisticText(a *Alert) string {
	if a.Statistic == nil {
		return ""
	}
	return strconv.FormatFloat(*a.Statistic, 'g', 6, 64)
}

func eventTime(a *Alert) time.Time {
	if a.ResolvedAt != nil {
		return *a.ResolvedAt
	}
	return a.FiredAt
}

func stateLabel(a *Alert) string {
	if a.State == StateResolved {
		return "[RESOLVED]"
	}
	if a.Severity == SeverityCritical {
		return "[CRITICAL]"
	}
	return "[WARNING]"
}

// colorHex maps a decoration colour onto the shade used on plots.
func colorHex(c string) string {
	switch c {
	case quality.ColorGood:
		return "#2E7D32"
	case quality.ColorMedium:
		return "#F57C00"
	default:
		return "#D32F2F"
	}
}
