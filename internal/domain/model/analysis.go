package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MatchEvent is one detected occurrence within a match.
type MatchEvent struct {
	Type       string          `json:"type"`
	Time       string          `json:"time,omitempty"`
	Minute     int             `json:"minute"`
	Second     int             `json:"second"`
	Team       string          `json:"team,omitempty"`
	Player     string          `json:"player,omitempty"`
	Tactics    json.RawMessage `json:"tactics,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
}

// UnmarshalJSON accepts "time" as "mm:ss", "timestamp" as seconds or
// "mm:ss", or explicit minute/second fields, and normalizes all of them.
// Type, team and player may be plain strings or objects carrying a "name",
// as external event feeds send them.
func (e *MatchEvent) UnmarshalJSON(data []byte) error {
	type plain MatchEvent
	var raw struct {
		plain
		Type      json.RawMessage `json:"type"`
		Team      json.RawMessage `json:"team"`
		Player    json.RawMessage `json:"player"`
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = MatchEvent(raw.plain)
	e.Type = nameOf(raw.Type)
	e.Team = nameOf(raw.Team)
	e.Player = nameOf(raw.Player)

	switch {
	case e.Time != "":
		m, s, err := parseClock(e.Time)
		if err != nil {
			return fmt.Errorf("event %q: %w", e.Type, err)
		}
		e.Minute, e.Second = m, s
	case len(raw.Timestamp) > 0:
		var secs float64
		var text string
		if json.Unmarshal(raw.Timestamp, &secs) == nil {
			total := int(secs)
			e.Minute, e.Second = total/60, total%60
		} else if json.Unmarshal(raw.Timestamp, &text) == nil {
			// Non-clock timestamps (e.g. RFC3339) carry no match time.
			if m, s, err := parseClock(text); err == nil {
				e.Minute, e.Second = m, s
			}
		}
	}
	if e.Time == "" {
		e.Time = fmt.Sprintf("%02d:%02d", e.Minute, e.Second)
	}
	return nil
}

// nameOf reads a string, or the "name" of an object. Anything else is "".
func nameOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var named struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(raw, &named) == nil {
		return named.Name
	}
	return ""
}

func parseClock(clock string) (int, int, error) {
	mm, ss, ok := strings.Cut(strings.TrimSpace(clock), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid clock %q", clock)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock %q", clock)
	}
	s, err := strconv.Atoi(ss)
	if err != nil || s < 0 || s > 59 {
		return 0, 0, fmt.Errorf("invalid clock %q", clock)
	}
	return m, s, nil
}

// Summary aggregates event counts.
type Summary struct {
	TotalEvents int `json:"total_events"`
	Goals       int `json:"goals"`
	Fouls       int `json:"fouls"`
	Corners     int `json:"corners"`
	Cards       int `json:"cards"`
}

// Summarize counts events by kind.
func Summarize(events []MatchEvent) Summary {
	s := Summary{TotalEvents: len(events)}
	for _, e := range events {
		kind := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(e.Type)), " ", "_")
		switch {
		case kind == "goal":
			s.Goals++
		case kind == "foul" || kind == "foul_committed":
			s.Fouls++
		case kind == "corner":
			s.Corners++
		case strings.HasSuffix(kind, "_card"):
			s.Cards++
		}
	}
	return s
}

// AnalysisResult is the output of one analysis run.
type AnalysisResult struct {
	MatchID       string       `json:"match_id,omitempty"`
	GeneratedAt   time.Time    `json:"timestamp"`
	AnalyzedVideo Attachment   `json:"analyzed_video"`
	Events        []MatchEvent `json:"events"`
	Summary       *Summary     `json:"summary,omitempty"`
	// Document holds the external artifact verbatim when the events were
	// loaded from a fallback source.
	Document json.RawMessage `json:"-"`
}

// EventsDocument returns the JSON sent as the events file on confirmation.
func (r AnalysisResult) EventsDocument() ([]byte, error) {
	if len(r.Document) > 0 {
		return r.Document, nil
	}
	events := r.Events
	if events == nil {
		events = []MatchEvent{}
	}
	doc := struct {
		MatchID   string       `json:"match_id,omitempty"`
		Timestamp string       `json:"timestamp,omitempty"`
		Events    []MatchEvent `json:"events"`
		Summary   *Summary     `json:"summary,omitempty"`
	}{
		MatchID: r.MatchID,
		Events:  events,
		Summary: r.Summary,
	}
	if !r.GeneratedAt.IsZero() {
		doc.Timestamp = r.GeneratedAt.UTC().Format(time.RFC3339)
	}
	return json.Marshal(doc)
}
