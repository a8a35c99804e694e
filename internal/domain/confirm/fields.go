package confirm

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/okian/spinta/internal/domain/model"
)

// Multipart field names expected by the backend.
const (
	FieldOpponentName  = "opponent_name"
	FieldMatchDate     = "match_date"
	FieldOurScore      = "our_score"
	FieldOpponentScore = "opponent_score"
	FieldEventsFile    = "events_file"

	EventsFileName = "events.json"
)

// Field is one text form field.
type Field struct {
	Name  string
	Value string
}

// Fields is the complete confirmation payload.
type Fields struct {
	Values []Field
	Events []byte
}

// Get returns the value of a text field.
func (f Fields) Get(name string) string {
	for _, v := range f.Values {
		if v.Name == name {
			return v.Value
		}
	}
	return ""
}

// BuildFields derives the confirmation payload. It has no side effects and
// returns identical output for identical input.
func BuildFields(sub model.MatchSubmission, res model.AnalysisResult) (Fields, error) {
	our, their := sub.HomeScore, sub.AwayScore
	if sub.MatchType == model.MatchAway {
		our, their = sub.AwayScore, sub.HomeScore
	}
	events, err := res.EventsDocument()
	if err != nil {
		return Fields{}, fmt.Errorf("encode events: %w", err)
	}
	return Fields{
		Values: []Field{
			{Name: FieldOpponentName, Value: sub.OpponentName},
			{Name: FieldMatchDate, Value: sub.MatchDate.Format("2006-01-02")},
			{Name: FieldOurScore, Value: score(our)},
			{Name: FieldOpponentScore, Value: score(their)},
		},
		Events: events,
	}, nil
}

func score(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "0"
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return strconv.Itoa(n)
	}
	return s
}

// Encode renders the payload as multipart/form-data. The boundary is derived
// from the content so the same fields always encode to the same bytes.
func (f Fields) Encode() (contentType string, body []byte, err error) {
	h := sha256.New()
	for _, v := range f.Values {
		h.Write([]byte(v.Name))
		h.Write([]byte{0})
		h.Write([]byte(v.Value))
		h.Write([]byte{0})
	}
	h.Write(f.Events)
	boundary := "spinta" + hex.EncodeToString(h.Sum(nil))[:32]

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.SetBoundary(boundary); err != nil {
		return "", nil, err
	}
	for _, v := range f.Values {
		if err := mw.WriteField(v.Name, v.Value); err != nil {
			return "", nil, err
		}
	}
	ph := make(textproto.MIMEHeader)
	ph.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldEventsFile, EventsFileName))
	ph.Set("Content-Type", "application/json")
	part, err := mw.CreatePart(ph)
	if err != nil {
		return "", nil, err
	}
	if _, err := part.Write(f.Events); err != nil {
		return "", nil, err
	}
	if err := mw.Close(); err != nil {
		return "", nil, err
	}
	return mw.FormDataContentType(), buf.Bytes(), nil
}
