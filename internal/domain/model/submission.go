// Package model contains the values handed between pipeline stages.
package model

import (
	"time"
)

// MatchType tells which side of the fixture the coach's team played on.
type MatchType string

// Match types.
const (
	MatchHome MatchType = "home"
	MatchAway MatchType = "away"
)

// Valid reports whether t is one of the known match types.
func (t MatchType) Valid() bool {
	return t == MatchHome || t == MatchAway
}

// MiB is the byte size used for attachment limits.
const MiB = 1024 * 1024

// Attachment describes a binary file selected for a form slot.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	// Path locates the bytes on local disk. Empty for metadata-only values.
	Path string `json:"-"`
}

// IsZero reports whether no file is attached.
func (a Attachment) IsZero() bool {
	return a.Name == "" && a.Size == 0 && a.Path == ""
}

// MatchSubmission is the frozen, validated record of the match form.
// Stages receive it by value; nothing mutates it after Submit.
type MatchSubmission struct {
	ID           string      `json:"id"`
	OpponentName string      `json:"opponent_name"`
	OpponentLogo *Attachment `json:"opponent_logo,omitempty"`
	MatchDate    time.Time   `json:"match_date"`
	MatchType    MatchType   `json:"match_type"`
	HomeLineup   *Attachment `json:"home_lineup,omitempty"`
	AwayLineup   *Attachment `json:"away_lineup,omitempty"`
	HomeScore    string      `json:"home_score,omitempty"`
	AwayScore    string      `json:"away_score,omitempty"`
	MatchVideo   Attachment  `json:"match_video"`
	SubmittedAt  time.Time   `json:"submitted_at"`
}

// Attachments returns every file carried by the submission.
func (s MatchSubmission) Attachments() []Attachment {
	out := []Attachment{s.MatchVideo}
	for _, a := range []*Attachment{s.OpponentLogo, s.HomeLineup, s.AwayLineup} {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out
}

// OurTeamLabel is how the coach's own side is shown in headlines.
const OurTeamLabel = "Your Team"

// Teams returns the home and away display names for the fixture.
func (s MatchSubmission) Teams() (home, away string) {
	if s.MatchType == MatchAway {
		return s.OpponentName, OurTeamLabel
	}
	return OurTeamLabel, s.OpponentName
}

// Headline renders "<home> vs <away> - dd/MM/yyyy".
func (s MatchSubmission) Headline() string {
	home, away := s.Teams()
	return home + " vs " + away + " - " + s.MatchDate.Format("02/01/2006")
}
