package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/spinta/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMatchEventDecoding(t *testing.T) {
	Convey("Given event JSON in the shapes analysis artifacts use", t, func() {
		Convey("When the event has a mm:ss time", func() {
			var e model.MatchEvent
			err := json.Unmarshal([]byte(`{"type":"goal","time":"23:45","team":"home","player":"Player #10","confidence":0.95}`), &e)

			Convey("Then minute and second are derived", func() {
				So(err, ShouldBeNil)
				So(e.Minute, ShouldEqual, 23)
				So(e.Second, ShouldEqual, 45)
				So(e.Player, ShouldEqual, "Player #10")
			})
		})

		Convey("When the event has a numeric timestamp in seconds", func() {
			var e model.MatchEvent
			err := json.Unmarshal([]byte(`{"type":"pass","timestamp":125.4,"tactics":{"shape":"4-3-3"}}`), &e)

			Convey("Then the clock is normalized", func() {
				So(err, ShouldBeNil)
				So(e.Minute, ShouldEqual, 2)
				So(e.Second, ShouldEqual, 5)
				So(e.Time, ShouldEqual, "02:05")
				So(string(e.Tactics), ShouldEqual, `{"shape":"4-3-3"}`)
			})
		})

		Convey("When the event carries minute and second directly", func() {
			var e model.MatchEvent
			So(json.Unmarshal([]byte(`{"type":"corner","minute":90,"second":3}`), &e), ShouldBeNil)
			So(e.Time, ShouldEqual, "90:03")
		})

		Convey("When type, team and player are named objects", func() {
			var e model.MatchEvent
			err := json.Unmarshal([]byte(`{"type":{"id":16,"name":"Shot"},"team":{"name":"Mexico"},"player":{"name":"R. Jimenez"},"minute":12,"second":5}`), &e)
			So(err, ShouldBeNil)
			So(e.Type, ShouldEqual, "Shot")
			So(e.Team, ShouldEqual, "Mexico")
			So(e.Player, ShouldEqual, "R. Jimenez")
			So(e.Time, ShouldEqual, "12:05")
		})

		Convey("When the time is malformed", func() {
			var e model.MatchEvent
			err := json.Unmarshal([]byte(`{"type":"goal","time":"late"}`), &e)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSummarize(t *testing.T) {
	Convey("Summarize counts events by kind", t, func() {
		s := model.Summarize([]model.MatchEvent{
			{Type: "goal"}, {Type: "foul"}, {Type: "corner"}, {Type: "yellow_card"}, {Type: "red_card"},
		})
		So(s, ShouldResemble, model.Summary{TotalEvents: 5, Goals: 1, Fouls: 1, Corners: 1, Cards: 2})
	})
}

func TestEventsDocument(t *testing.T) {
	Convey("Given analysis results", t, func() {
		Convey("When the result came from an external document", func() {
			r := model.AnalysisResult{Document: json.RawMessage(`{"custom":true}`)}
			doc, err := r.EventsDocument()

			Convey("Then the document is passed through verbatim", func() {
				So(err, ShouldBeNil)
				So(string(doc), ShouldEqual, `{"custom":true}`)
			})
		})

		Convey("When the result has no events", func() {
			doc, err := model.AnalysisResult{}.EventsDocument()

			Convey("Then an empty events array is encoded", func() {
				So(err, ShouldBeNil)
				So(string(doc), ShouldEqual, `{"events":[]}`)
			})
		})
	})
}

func TestSubmissionHeadline(t *testing.T) {
	Convey("Given a frozen submission", t, func() {
		sub := model.MatchSubmission{
			OpponentName: "Rovers",
			MatchDate:    time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
			MatchType:    model.MatchAway,
			MatchVideo:   model.Attachment{Name: "match.mp4", Size: 10},
		}

		Convey("Then the coach's team is shown on the away side", func() {
			So(sub.Headline(), ShouldEqual, "Rovers vs Your Team - 09/03/2025")
		})

		Convey("And a home fixture flips the sides", func() {
			sub.MatchType = model.MatchHome
			So(sub.Headline(), ShouldEqual, "Your Team vs Rovers - 09/03/2025")
		})

		Convey("And attachments list only present files", func() {
			So(len(sub.Attachments()), ShouldEqual, 1)
			sub.HomeLineup = &model.Attachment{Name: "lineup.pdf"}
			So(len(sub.Attachments()), ShouldEqual, 2)
		})
	})
}

func TestReceipt(t *testing.T) {
	Convey("A receipt exposes its message and marshals verbatim", t, func() {
		r := model.Receipt{Body: json.RawMessage(`{"message":"saved","match_id":"m1"}`)}
		So(r.Message(), ShouldEqual, "saved")
		out, err := json.Marshal(r)
		So(err, ShouldBeNil)
		So(string(out), ShouldEqual, `{"message":"saved","match_id":"m1"}`)
		So(model.Receipt{}.Message(), ShouldEqual, "")
	})
}
