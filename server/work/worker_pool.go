package work

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sheguard/sheguard/server/models"
)

type workerPool struct {
	handlers    map[string]Handler
	workers     []*worker
	requeuers   []*requeuer
	concurrency int
	started     bool
}

func newWorkerPool(concurrency int) (*workerPool, error) {
	wp := workerPool{handlers: make(map[string]Handler), concurrency: concurrency}

	for i := 0; i < concurrency; i++ {
		wp.workers = append(wp.workers, newWorker([]int64{0, 10, 100, 120}))
	}

	for _, fromQueue := range []string{models.IN_PROGRESS_JOB, models.SCHEDULED_JOB} {
		rq, err := newRequeuer(fromQueue)
		if err != nil {
			return nil, err
		}
		wp.requeuers = append(wp.requeuers, rq)
	}

	return &wp, nil
}

// registerHandler binds a name to a job handler for all workers in pool
func (wp *workerPool) registerHandler(name string, handler Handler) error {
	if _, ok := wp.handlers[name]; ok {
		return ErrDuplicateHandler
	}
	wp.handlers[name] = handler

	for _, worker := range wp.workers {
		err := worker.registerHandler(name, handler)

		// Only panic if we get an error that is unexpected i.e !ErrDuplicateHandler
		if err != nil && !errors.Is(err, ErrDuplicateHandler) {
			logg.Panic(err)
		}
	}
	return nil
}

// enqueue adds a job to the queue(to be executed) by creating a DB record based on 'JobParams' provided
func (wp *workerPool) enqueue(job JobParams) error {
	argsAsJson, err := jobArgsAsJson(job)
	if err != nil {
		return err
	}

	// This ensures that all jobs currently in the queue or in-progress are unique
	return models.CreateUniqueJobByName(job.Name, job.Handler, argsAsJson)
}

// enqueueIn schedules a job to be moved into the queue once
// 'secondsInFuture' seconds have passed.
func (wp *workerPool) enqueueIn(secondsInFuture int64, job JobParams) error {
	argsAsJson, err := jobArgsAsJson(job)
	if err != nil {
		return err
	}

	enqueueAt := time.Now().Add(time.Duration(secondsInFuture) * time.Second)

	return models.ScheduleJob(job.Name, job.Handler, argsAsJson, enqueueAt)
}

// start starts all workers & requeuers in pool i.e they can start processing jobs
func (wp *workerPool) start() {
	if wp.started {
		return
	}
	wp.started = true

	for _, worker := range wp.workers {
		worker.start()
	}

	for _, requeuer := range wp.requeuers {
		requeuer.start()
	}
}

// stop stops all workers & requeuers in pool i.e jobs will stop being processed
func (wp *workerPool) stop() {
	if !wp.started {
		return
	}

	wg := sync.WaitGroup{}
	for _, w := range wp.workers {
		wg.Add(1)
		go func(w *worker) {
			w.stop()
			wg.Done()
		}(w)
	}
	for _, rq := range wp.requeuers {
		wg.Add(1)
		go func(rq *requeuer) {
			rq.stop()
			wg.Done()
		}(rq)
	}
	wg.Wait()
	wp.started = false
}

func jobArgsAsJson(job JobParams) (string, error) {
	if strings.TrimSpace(job.Name) == "" || strings.TrimSpace(job.Handler) == "" {
		return "", fmt.Errorf("both a name & handler is required for a job")
	}

	argsAsJson, err := json.Marshal(job.Args)
	if err != nil {
		return "", err
	}

	return string(argsAsJson), nil
}
