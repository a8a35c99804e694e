package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/spinta/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func run(id string, stage model.Stage, created time.Time) model.Run {
	return model.Run{ID: id, Stage: stage, CreatedAt: created, UpdatedAt: created}
}

func TestMemoryRunStore(t *testing.T) {
	Convey("Given an empty run store", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		now := base.Add(2 * time.Hour)
		store := NewMemoryRunStore(ctx, WithRetention(time.Hour), WithClock(func() time.Time { return now }))

		Convey("When runs are saved", func() {
			So(store.Save(ctx, run("a", model.StagePreview, base)), ShouldBeNil)
			So(store.Save(ctx, run("b", model.StageAnalyzing, base.Add(time.Minute))), ShouldBeNil)

			Convey("Then they can be read and listed newest first", func() {
				r, err := store.Get(ctx, "a")
				So(err, ShouldBeNil)
				So(r.Stage, ShouldEqual, model.StagePreview)
				So(store.Count(ctx), ShouldEqual, 2)

				list, err := store.List(ctx, 0)
				So(err, ShouldBeNil)
				So(list[0].ID, ShouldEqual, "b")

				list, err = store.List(ctx, 1)
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 1)

				_, err = store.List(ctx, -1)
				So(errors.Is(err, ErrInvalidLimit), ShouldBeTrue)

				So(store.CountByStage(ctx)[model.StageAnalyzing], ShouldEqual, 1)
			})

			Convey("Then Update applies changes atomically", func() {
				r, err := store.Update(ctx, "a", func(r *model.Run) error {
					r.Stage = model.StageConfirming
					return nil
				})
				So(err, ShouldBeNil)
				So(r.Stage, ShouldEqual, model.StageConfirming)

				boom := errors.New("boom")
				_, err = store.Update(ctx, "a", func(r *model.Run) error {
					r.Stage = model.StageFailed
					return boom
				})
				So(errors.Is(err, boom), ShouldBeTrue)
				got, _ := store.Get(ctx, "a")
				So(got.Stage, ShouldEqual, model.StageConfirming)
			})

			Convey("Then Delete removes the run", func() {
				So(store.Delete(ctx, "a"), ShouldBeNil)
				_, err := store.Get(ctx, "a")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When an unknown run is updated", func() {
			_, err := store.Update(ctx, "zzz", func(*model.Run) error { return nil })
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("When a run without id is saved", func() {
			So(errors.Is(store.Save(ctx, model.Run{}), ErrEmptyKey), ShouldBeTrue)
		})

		Convey("When pruning", func() {
			So(store.Save(ctx, run("old-done", model.StageConfirmed, base)), ShouldBeNil)
			So(store.Save(ctx, run("old-open", model.StagePreview, base)), ShouldBeNil)
			So(store.Save(ctx, run("new-done", model.StageDiscarded, now)), ShouldBeNil)

			Convey("Then only old terminal runs are dropped", func() {
				So(store.Prune(), ShouldEqual, 1)
				_, err := store.Get(ctx, "old-done")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				So(store.Count(ctx), ShouldEqual, 2)
			})
		})

		Convey("When updated concurrently", func() {
			So(store.Save(ctx, run("c", model.StagePreview, base)), ShouldBeNil)
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = store.Update(ctx, "c", func(r *model.Run) error {
						r.Generation++
						return nil
					})
				}()
			}
			wg.Wait()
			r, _ := store.Get(ctx, "c")
			So(r.Generation, ShouldEqual, 50)
		})
	})
}

func testKV(ctx context.Context, kv KV) {
	Convey("Missing keys report not found", func() {
		_, ok, err := kv.Get(ctx, "auth_token")
		So(err, ShouldBeNil)
		So(ok, ShouldBeFalse)
	})

	Convey("Values can be set, overwritten and deleted", func() {
		So(kv.Set(ctx, "auth_token", "abc"), ShouldBeNil)
		So(kv.Set(ctx, "auth_token", "def"), ShouldBeNil)
		So(kv.Set(ctx, "user", `{"email":"a@b.c"}`), ShouldBeNil)

		v, ok, err := kv.Get(ctx, "auth_token")
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, "def")

		So(kv.Delete(ctx, "auth_token", "user", "missing"), ShouldBeNil)
		_, ok, _ = kv.Get(ctx, "user")
		So(ok, ShouldBeFalse)
	})

	Convey("Empty keys are rejected", func() {
		So(errors.Is(kv.Set(ctx, "", "x"), ErrEmptyKey), ShouldBeTrue)
	})
}

func TestMemoryKV(t *testing.T) {
	Convey("Given a memory KV", t, func() {
		testKV(context.Background(), NewMemoryKV())
	})
}

func TestSQLiteKV(t *testing.T) {
	Convey("Given a SQLite KV in a temp dir", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "nested", "session.db")
		kv, err := NewSQLiteKV(path)
		So(err, ShouldBeNil)
		defer kv.Close()

		testKV(ctx, kv)

		Convey("Values survive reopening", func() {
			So(kv.Set(ctx, "auth_token", "persisted"), ShouldBeNil)
			So(kv.Close(), ShouldBeNil)

			again, err := NewSQLiteKV(path)
			So(err, ShouldBeNil)
			defer again.Close()
			v, ok, err := again.Get(ctx, "auth_token")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, "persisted")
		})
	})
}
