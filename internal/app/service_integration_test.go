package service_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/spinta/internal/adapters/backend"
	"github.com/okian/spinta/internal/adapters/repository"
	service "github.com/okian/spinta/internal/app"
	"github.com/okian/spinta/internal/auth"
	"github.com/okian/spinta/internal/domain/analysis"
	"github.com/okian/spinta/internal/domain/confirm"
	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const artifact = `{
  "match_id": "mexico794",
  "timestamp": "2024-04-20T18:00:00Z",
  "events": [
    {"type": "goal", "timestamp": "12:01", "player": "Lozano", "team": "Mexico"},
    {"type": "corner", "timestamp": "30:10", "team": "Your Team"}
  ]
}`

type fakeBackend struct {
	mu       sync.Mutex
	auth     string
	fields   map[string]string
	events   string
	confirms int
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(backend.LoginPath, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"token":"tok-1","user":{"user_id":"u1","email":"coach@club.test","user_type":"coach","full_name":"Coach Carter"}}`)
	})
	mux.HandleFunc(backend.ConfirmPath, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		b.confirms++
		b.auth = r.Header.Get("Authorization")
		b.fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			b.fields[k] = v[0]
		}
		if f, _, err := r.FormFile(confirm.FieldEventsFile); err == nil {
			data, _ := io.ReadAll(f)
			b.events = string(data)
			_ = f.Close()
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"message":"Match saved"}`)
	})
	return mux
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given the full pipeline against a fake backend", t, func() {
		fb := &fakeBackend{}
		srv := httptest.NewServer(fb.handler())
		defer srv.Close()

		dir := t.TempDir()
		source := filepath.Join(dir, analysis.DefaultArtifact)
		So(os.WriteFile(source, []byte(artifact), 0o600), ShouldBeNil)

		log := logger.Get()
		client := backend.New(srv.URL, backend.WithTimeout(5*time.Second), backend.WithLogger(log))
		store := auth.NewStore(repository.NewMemoryKV(), log)
		provider, err := analysis.NewProvider(analysis.ProviderStatic, source)
		So(err, ShouldBeNil)

		svc := service.New(
			service.WithWorkerCount(1),
			service.WithLogger(log),
			service.WithAuth(auth.NewService(client, store, log)),
			service.WithConfirmer(confirm.NewSubmitter(client, store.Headers, log)),
			service.WithAnalyzer(analysis.NewOrchestrator(provider, analysis.WithMinDuration(20*time.Millisecond)), provider.Name()),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		sub := model.MatchSubmission{
			ID:           "int-1",
			OpponentName: "Mexico",
			MatchDate:    time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC),
			MatchType:    model.MatchAway,
			HomeScore:    "2",
			AwayScore:    "1",
			MatchVideo:   model.Attachment{Name: "match.mp4", ContentType: "video/mp4", Size: 4},
		}
		_, err = svc.Submit(ctx, sub)
		So(err, ShouldBeNil)
		run, err := svc.Wait(ctx, sub.ID)
		So(err, ShouldBeNil)
		So(run.Stage, ShouldEqual, model.StagePreview)
		So(run.Result.Events, ShouldHaveLength, 2)

		Convey("When confirming without a session", func() {
			run, err := svc.Confirm(ctx, sub.ID)

			Convey("Then login is required and nothing is sent", func() {
				So(errors.Is(err, confirm.ErrAuthRequired), ShouldBeTrue)
				So(run.Stage, ShouldEqual, model.StagePreview)
				fb.mu.Lock()
				defer fb.mu.Unlock()
				So(fb.confirms, ShouldEqual, 0)
			})
		})

		Convey("When the coach logs in and confirms", func() {
			res, err := svc.Login(ctx, "coach@club.test", "secret1")
			So(err, ShouldBeNil)
			So(res.Notice, ShouldEqual, "Welcome, Coach Carter!")

			run, err := svc.Confirm(ctx, sub.ID)

			Convey("Then the backend receives our relabelled scores and the artifact", func() {
				So(err, ShouldBeNil)
				So(run.Stage, ShouldEqual, model.StageConfirmed)
				So(run.Message, ShouldEqual, "Match saved")

				fb.mu.Lock()
				defer fb.mu.Unlock()
				So(fb.auth, ShouldEqual, "Bearer tok-1")
				So(fb.fields[confirm.FieldOpponentName], ShouldEqual, "Mexico")
				So(fb.fields[confirm.FieldOurScore], ShouldEqual, "1")
				So(fb.fields[confirm.FieldOpponentScore], ShouldEqual, "2")
				So(fb.events, ShouldContainSubstring, "Lozano")
			})

			Convey("And logging out clears the session", func() {
				So(svc.Logout(ctx), ShouldBeNil)
				_, ok, err := svc.Session(ctx)
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})
	})
}
