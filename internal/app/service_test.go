package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	service "github.com/okian/spinta/internal/app"
	"github.com/okian/spinta/internal/auth"
	"github.com/okian/spinta/internal/domain/analysis"
	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

type stubAuth struct{}

func (stubAuth) Login(context.Context, string, string) (auth.LoginResult, error) {
	return auth.LoginResult{Notice: "Welcome, Coach!"}, nil
}

func (stubAuth) Session(context.Context) (model.Session, bool, error) {
	return model.Session{Token: "t"}, true, nil
}

func (stubAuth) Logout(context.Context) error { return nil }

type stubConfirmer struct {
	mu    sync.Mutex
	err   error
	calls int
	gate  chan struct{}
}

func (c *stubConfirmer) Confirm(ctx context.Context, _ model.MatchSubmission, _ model.AnalysisResult) (model.Receipt, error) {
	c.mu.Lock()
	c.calls++
	err, gate := c.err, c.gate
	c.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.Receipt{}, ctx.Err()
		}
	}
	if err != nil {
		return model.Receipt{}, err
	}
	return model.Receipt{Body: []byte(`{"message":"Saved"}`)}, nil
}

func (c *stubConfirmer) set(err error, gate chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err, c.gate = err, gate
}

func (c *stubConfirmer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// blockingAnalyzer waits for release or cancellation.
type blockingAnalyzer struct {
	release  chan struct{}
	canceled atomic.Int32
	calls    atomic.Int32
}

func (b *blockingAnalyzer) Analyze(ctx context.Context, sub model.MatchSubmission, progress analysis.ProgressFunc) (model.AnalysisResult, error) { //nolint:gocritic // hugeParam
	b.calls.Add(1)
	progress("Processing video...")
	select {
	case <-b.release:
		return model.AnalysisResult{MatchID: sub.ID, Events: analysis.FixtureEvents()}, nil
	case <-ctx.Done():
		b.canceled.Add(1)
		return model.AnalysisResult{}, ctx.Err()
	}
}

type failingAnalyzer struct{ fail atomic.Bool }

func (f *failingAnalyzer) Analyze(_ context.Context, sub model.MatchSubmission, _ analysis.ProgressFunc) (model.AnalysisResult, error) { //nolint:gocritic // hugeParam
	if f.fail.Load() {
		return model.AnalysisResult{}, analysis.ErrAnalysisFailed
	}
	return model.AnalysisResult{MatchID: sub.ID, Events: []model.MatchEvent{}}, nil
}

func fastAnalyzer() service.Option {
	return service.WithAnalyzer(analysis.NewOrchestrator(analysis.NewFixtureProvider(),
		analysis.WithMinDuration(10*time.Millisecond),
		analysis.WithMessageInterval(5*time.Millisecond),
	), analysis.ProviderFixture)
}

func submission(id string) model.MatchSubmission {
	return model.MatchSubmission{
		ID:           id,
		OpponentName: "Rovers",
		MatchDate:    time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
		MatchType:    model.MatchAway,
		HomeScore:    "1",
		AwayScore:    "3",
		MatchVideo:   model.Attachment{Name: "match.mp4", ContentType: "video/mp4", Size: 10},
	}
}

func startService(confirmer *stubConfirmer, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithWorkerCount(2),
		service.WithQueueSize(8),
		service.WithAuth(stubAuth{}),
		service.WithConfirmer(confirmer),
		fastAnalyzer(),
	}
	svc := service.New(append(base, opts...)...)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc
}

func waitCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func TestService_Start(t *testing.T) {
	Convey("Given a new service", t, func() {
		Convey("When dependencies are missing", func() {
			err := service.New().Start(context.Background())

			Convey("Then it refuses to start", func() {
				So(errors.Is(err, service.ErrMissingDep), ShouldBeTrue)
			})
		})

		Convey("When starting and stopping", func() {
			svc := startService(&stubConfirmer{})

			Convey("Then stats follow the lifecycle", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["workerCount"], ShouldEqual, 2)
				So(stats["queueSize"], ShouldEqual, 8)
				So(stats["provider"], ShouldEqual, analysis.ProviderFixture)
				So(svc.Start(context.Background()), ShouldBeNil)

				svc.Stop()
				So(svc.GetStats()["started"], ShouldEqual, false)
				svc.Stop()
			})
		})

		Convey("When submitting before start", func() {
			_, err := service.New().Submit(context.Background(), submission("early"))
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})
}

func TestService_Pipeline(t *testing.T) {
	Convey("Given a started service", t, func() {
		confirmer := &stubConfirmer{}
		svc := startService(confirmer)
		defer svc.Stop()
		ctx, cancel := waitCtx()
		defer cancel()

		Convey("When a submission is analyzed", func() {
			run, err := svc.Submit(ctx, submission("m1"))
			So(err, ShouldBeNil)
			So(run.Stage, ShouldEqual, model.StageAnalyzing)
			So(run.Message, ShouldEqual, analysis.DefaultMessages[0])

			done, err := svc.Wait(ctx, "m1")

			Convey("Then the run reaches preview with the fixture events", func() {
				So(err, ShouldBeNil)
				So(done.Stage, ShouldEqual, model.StagePreview)
				So(done.Result, ShouldNotBeNil)
				So(done.Result.Events, ShouldHaveLength, 4)
				So(done.Result.AnalyzedVideo.Name, ShouldEqual, "match.mp4")
			})

			Convey("And confirming records the receipt once", func() {
				confirmed, err := svc.Confirm(ctx, "m1")
				So(err, ShouldBeNil)
				So(confirmed.Stage, ShouldEqual, model.StageConfirmed)
				So(confirmed.Message, ShouldEqual, "Saved")

				_, err = svc.Confirm(ctx, "m1")
				So(errors.Is(err, service.ErrStage), ShouldBeTrue)
				So(confirmer.count(), ShouldEqual, 1)
			})

			Convey("And a duplicate submission id is rejected", func() {
				_, err := svc.Submit(ctx, submission("m1"))
				So(errors.Is(err, service.ErrStage), ShouldBeTrue)
			})
		})

		Convey("When confirmation fails", func() {
			_, err := svc.Submit(ctx, submission("m2"))
			So(err, ShouldBeNil)
			_, err = svc.Wait(ctx, "m2")
			So(err, ShouldBeNil)

			boom := errors.New("backend down")
			confirmer.set(boom, nil)
			run, err := svc.Confirm(ctx, "m2")

			Convey("Then the run stays in preview and can be retried", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				So(run.Stage, ShouldEqual, model.StagePreview)
				So(run.Error, ShouldEqual, "backend down")

				confirmer.set(nil, nil)
				run, err = svc.Confirm(ctx, "m2")
				So(err, ShouldBeNil)
				So(run.Stage, ShouldEqual, model.StageConfirmed)
				So(run.Error, ShouldBeEmpty)
			})
		})

		Convey("When re-analyzing a previewed run", func() {
			_, err := svc.Submit(ctx, submission("m3"))
			So(err, ShouldBeNil)
			_, err = svc.Wait(ctx, "m3")
			So(err, ShouldBeNil)

			run, err := svc.Reanalyze(ctx, "m3")
			So(err, ShouldBeNil)
			So(run.Generation, ShouldEqual, 2)
			So(run.Result, ShouldBeNil)

			Convey("Then a fresh preview is produced", func() {
				done, err := svc.Wait(ctx, "m3")
				So(err, ShouldBeNil)
				So(done.Stage, ShouldEqual, model.StagePreview)
				So(done.Generation, ShouldEqual, 2)
			})
		})

		Convey("When the run is unknown", func() {
			_, err := svc.Get(ctx, "missing")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			_, err = svc.Confirm(ctx, "missing")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			_, err = svc.Discard(ctx, "missing")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		})

		Convey("When logging in through the service", func() {
			res, err := svc.Login(ctx, "a@b.co", "secret1")
			So(err, ShouldBeNil)
			So(res.Notice, ShouldEqual, "Welcome, Coach!")
			_, ok, err := svc.Session(ctx)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(svc.Logout(ctx), ShouldBeNil)
		})
	})
}

func TestService_Discard(t *testing.T) {
	Convey("Given an analysis that blocks", t, func() {
		spool := t.TempDir()
		blocker := &blockingAnalyzer{release: make(chan struct{})}
		svc := startService(&stubConfirmer{},
			service.WithAnalyzer(blocker, "blocking"),
			service.WithSpoolDir(spool),
		)
		defer svc.Stop()
		ctx, cancel := waitCtx()
		defer cancel()

		video := filepath.Join(spool, "d1", "match.mp4")
		So(os.MkdirAll(filepath.Dir(video), 0o750), ShouldBeNil)
		So(os.WriteFile(video, []byte("mp4"), 0o600), ShouldBeNil)
		outside := filepath.Join(t.TempDir(), "keep.png")
		So(os.WriteFile(outside, []byte("png"), 0o600), ShouldBeNil)

		sub := submission("d1")
		sub.MatchVideo.Path = video
		sub.OpponentLogo = &model.Attachment{Name: "keep.png", Path: outside}
		_, err := svc.Submit(ctx, sub)
		So(err, ShouldBeNil)

		for blocker.calls.Load() == 0 {
			time.Sleep(5 * time.Millisecond)
		}

		Convey("When re-analysis is requested mid-flight", func() {
			_, err := svc.Reanalyze(ctx, "d1")
			So(errors.Is(err, service.ErrStage), ShouldBeTrue)
		})

		Convey("When the run is discarded", func() {
			run, err := svc.Discard(ctx, "d1")
			So(err, ShouldBeNil)
			So(run.Stage, ShouldEqual, model.StageDiscarded)

			Convey("Then the analysis is canceled and spooled files go away", func() {
				for blocker.canceled.Load() == 0 {
					time.Sleep(5 * time.Millisecond)
				}
				got, err := svc.Get(ctx, "d1")
				So(err, ShouldBeNil)
				So(got.Stage, ShouldEqual, model.StageDiscarded)
				So(got.Result, ShouldBeNil)

				_, statErr := os.Stat(video)
				So(os.IsNotExist(statErr), ShouldBeTrue)
				_, statErr = os.Stat(filepath.Dir(video))
				So(os.IsNotExist(statErr), ShouldBeTrue)
				_, statErr = os.Stat(outside)
				So(statErr, ShouldBeNil)

				_, err = svc.Discard(ctx, "d1")
				So(errors.Is(err, service.ErrStage), ShouldBeTrue)
			})
		})
	})
}

// manualClock is a time source tests move forward by hand.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestService_Expire(t *testing.T) {
	Convey("Given a previewed run that the coach walked away from", t, func() {
		spool := t.TempDir()
		clock := &manualClock{now: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)}
		svc := startService(&stubConfirmer{},
			service.WithSpoolDir(spool),
			service.WithClock(clock.Now),
			service.WithRunRetention(time.Hour),
		)
		defer svc.Stop()
		ctx, cancel := waitCtx()
		defer cancel()

		video := filepath.Join(spool, "upload-1", "match.mp4")
		So(os.MkdirAll(filepath.Dir(video), 0o750), ShouldBeNil)
		So(os.WriteFile(video, []byte("mp4"), 0o600), ShouldBeNil)
		idle := submission("idle")
		idle.MatchVideo.Path = video
		_, err := svc.Submit(ctx, idle)
		So(err, ShouldBeNil)
		run, err := svc.Wait(ctx, "idle")
		So(err, ShouldBeNil)
		So(run.Stage, ShouldEqual, model.StagePreview)

		Convey("When less than the retention has passed", func() {
			clock.Advance(30 * time.Minute)

			Convey("Then nothing expires", func() {
				So(svc.Expire(ctx), ShouldEqual, 0)
				got, err := svc.Get(ctx, "idle")
				So(err, ShouldBeNil)
				So(got.Stage, ShouldEqual, model.StagePreview)
				_, statErr := os.Stat(video)
				So(statErr, ShouldBeNil)
			})
		})

		Convey("When the retention has passed", func() {
			clock.Advance(2 * time.Hour)
			_, err := svc.Submit(ctx, submission("fresh"))
			So(err, ShouldBeNil)
			_, err = svc.Wait(ctx, "fresh")
			So(err, ShouldBeNil)

			Convey("Then only the idle run is discarded and its upload released", func() {
				So(svc.Expire(ctx), ShouldEqual, 1)
				got, err := svc.Get(ctx, "idle")
				So(err, ShouldBeNil)
				So(got.Stage, ShouldEqual, model.StageDiscarded)
				_, statErr := os.Stat(video)
				So(os.IsNotExist(statErr), ShouldBeTrue)

				fresh, err := svc.Get(ctx, "fresh")
				So(err, ShouldBeNil)
				So(fresh.Stage, ShouldEqual, model.StagePreview)
			})
		})
	})
}

func TestService_Failure(t *testing.T) {
	Convey("Given an analyzer that fails", t, func() {
		analyzer := &failingAnalyzer{}
		analyzer.fail.Store(true)
		svc := startService(&stubConfirmer{}, service.WithAnalyzer(analyzer, "failing"))
		defer svc.Stop()
		ctx, cancel := waitCtx()
		defer cancel()

		_, err := svc.Submit(ctx, submission("f1"))
		So(err, ShouldBeNil)
		run, err := svc.Wait(ctx, "f1")
		So(err, ShouldBeNil)

		Convey("Then the run is failed and cannot be confirmed", func() {
			So(run.Stage, ShouldEqual, model.StageFailed)
			So(run.Error, ShouldContainSubstring, "analysis failed")
			_, err := svc.Confirm(ctx, "f1")
			So(errors.Is(err, service.ErrStage), ShouldBeTrue)
		})

		Convey("Then a retry after recovery succeeds", func() {
			analyzer.fail.Store(false)
			_, err := svc.Reanalyze(ctx, "f1")
			So(err, ShouldBeNil)
			run, err := svc.Wait(ctx, "f1")
			So(err, ShouldBeNil)
			So(run.Stage, ShouldEqual, model.StagePreview)
			So(run.Result.Events, ShouldBeEmpty)
		})
	})
}

func TestService_ConfirmInFlight(t *testing.T) {
	Convey("Given a confirmation that is still running", t, func() {
		confirmer := &stubConfirmer{}
		svc := startService(confirmer)
		defer svc.Stop()
		ctx, cancel := waitCtx()
		defer cancel()

		_, err := svc.Submit(ctx, submission("c1"))
		So(err, ShouldBeNil)
		_, err = svc.Wait(ctx, "c1")
		So(err, ShouldBeNil)

		gate := make(chan struct{})
		confirmer.set(nil, gate)
		done := make(chan error, 1)
		go func() {
			_, err := svc.Confirm(ctx, "c1")
			done <- err
		}()
		for confirmer.count() == 0 {
			time.Sleep(5 * time.Millisecond)
		}

		Convey("When a second confirm, a re-analysis or a discard arrives", func() {
			_, confirmErr := svc.Confirm(ctx, "c1")
			_, reErr := svc.Reanalyze(ctx, "c1")
			_, discardErr := svc.Discard(ctx, "c1")
			close(gate)

			Convey("Then all of them are refused and the first one completes", func() {
				So(errors.Is(confirmErr, service.ErrInFlight), ShouldBeTrue)
				So(errors.Is(reErr, service.ErrInFlight), ShouldBeTrue)
				So(errors.Is(discardErr, service.ErrInFlight), ShouldBeTrue)
				So(<-done, ShouldBeNil)
				So(confirmer.count(), ShouldEqual, 1)
			})
		})
	})
}

func TestService_Stats(t *testing.T) {
	Convey("Given a service with a processed run", t, func() {
		svc := startService(&stubConfirmer{})
		defer svc.Stop()
		ctx, cancel := waitCtx()
		defer cancel()

		_, err := svc.Submit(ctx, submission("s1"))
		So(err, ShouldBeNil)
		_, err = svc.Wait(ctx, "s1")
		So(err, ShouldBeNil)

		Convey("Then stats report runs by stage", func() {
			stats := svc.GetStats()
			So(stats["runs"], ShouldEqual, 1)
			So(stats["runsByStage"], ShouldResemble, map[string]int{"preview": 1})
			So(stats["queueLength"], ShouldEqual, 0)

			runs, err := svc.List(ctx, 10)
			So(err, ShouldBeNil)
			So(runs, ShouldHaveLength, 1)
		})
	})
}
