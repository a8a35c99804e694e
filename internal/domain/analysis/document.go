package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/spinta/internal/domain/model"
)

// decodeDocument reads an events artifact. Two shapes are understood: an
// object ({match_id, timestamp, events, summary}) and a bare array of
// events. The raw bytes are always kept as the document, and events that
// cannot be read are skipped. Only invalid JSON or a scalar top level
// fails.
func decodeDocument(data []byte) (model.AnalysisResult, error) {
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return model.AnalysisResult{}, fmt.Errorf("decode events document: invalid JSON")
	}
	res := model.AnalysisResult{Document: json.RawMessage(data)}

	var rawEvents json.RawMessage
	switch data[0] {
	case '[':
		rawEvents = data
	case '{':
		var doc struct {
			MatchID   json.RawMessage `json:"match_id"`
			Timestamp json.RawMessage `json:"timestamp"`
			Events    json.RawMessage `json:"events"`
			Summary   json.RawMessage `json:"summary"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return model.AnalysisResult{}, fmt.Errorf("decode events document: %w", err)
		}
		rawEvents = doc.Events
		_ = json.Unmarshal(doc.MatchID, &res.MatchID)
		var summary model.Summary
		if len(doc.Summary) > 0 && json.Unmarshal(doc.Summary, &summary) == nil {
			res.Summary = &summary
		}
		var ts string
		if json.Unmarshal(doc.Timestamp, &ts) == nil {
			if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				res.GeneratedAt = t.UTC()
			}
		}
	default:
		return model.AnalysisResult{}, fmt.Errorf("decode events document: unexpected top level %q", data[0])
	}

	res.Events = decodeEvents(rawEvents)
	return res, nil
}

func decodeEvents(raw json.RawMessage) []model.MatchEvent {
	events := []model.MatchEvent{}
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return events
	}
	for _, item := range items {
		var e model.MatchEvent
		if err := json.Unmarshal(item, &e); err != nil || e.Type == "" {
			continue
		}
		events = append(events, e)
	}
	return events
}
