package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/spinta/internal/adapters/mq/queue"
	worker "github.com/okian/spinta/internal/adapters/mq/worker"
	model "github.com/okian/spinta/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan queue.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Job {
	return mq.jobs
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

func (mq *mockQueue) add(id string) {
	mq.jobs <- model.AnalysisJob{RunID: id, Generation: 1}
}

type recorder struct {
	mu   sync.Mutex
	seen []string
	fail map[string]error
}

func newRecorder() *recorder {
	return &recorder{fail: make(map[string]error)}
}

func (r *recorder) Handle(_ context.Context, j worker.Job) error { //nolint:gocritic // hugeParam
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, j.RunID)
	if err, ok := r.fail[j.RunID]; ok {
		return err
	}
	if j.RunID == "panic" {
		panic("boom")
	}
	return nil
}

func (r *recorder) failOn(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[id] = err
}

func (r *recorder) handled() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		q := newMockQueue()
		rec := newRecorder()
		w := worker.NewInMemoryWorker(q, rec, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job arrives", func() {
			q.add("run-1")

			convey.Convey("Then the handler sees it", func() {
				convey.So(waitFor(func() bool { return w.Processed() == 1 }), convey.ShouldBeTrue)
				convey.So(rec.handled(), convey.ShouldResemble, []string{"run-1"})
				convey.So(w.Failed(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the handler fails or panics", func() {
			rec.failOn("run-2", errors.New("analysis failed"))
			q.add("run-2")
			q.add("panic")
			q.add("run-3")

			convey.Convey("Then the worker keeps going and counts failures", func() {
				convey.So(waitFor(func() bool { return w.Processed() == 3 }), convey.ShouldBeTrue)
				convey.So(w.Failed(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When shut down", func() {
			convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool of three workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(50))
		var mu sync.Mutex
		counts := map[string]int{}
		h := worker.HandlerFunc(func(_ context.Context, j worker.Job) error {
			mu.Lock()
			counts[j.RunID]++
			mu.Unlock()
			return nil
		})
		pool := worker.NewPool(3, q, h)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When jobs are enqueued", func() {
			for i := 0; i < 20; i++ {
				convey.So(q.Enqueue(ctx, model.AnalysisJob{RunID: fmt.Sprintf("r%d", i)}), convey.ShouldBeNil)
			}

			convey.Convey("Then each is handled exactly once", func() {
				convey.So(waitFor(func() bool { return pool.Processed() == 20 }), convey.ShouldBeTrue)
				mu.Lock()
				defer mu.Unlock()
				convey.So(len(counts), convey.ShouldEqual, 20)
				for _, c := range counts {
					convey.So(c, convey.ShouldEqual, 1)
				}
				convey.So(pool.Size(), convey.ShouldEqual, 3)
			})

			convey.Convey("Then shutdown closes the queue", func() {
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("A pool with no count uses the CPU count", t, func() {
		pool := worker.NewPool(0, newMockQueue(), newRecorder())
		convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
	})
}
