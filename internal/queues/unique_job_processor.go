// Package queues serializes image builds so the same app is never built
// twice concurrently.
package queues

import (
	"context"
	"slices"
)

type queuedJob struct {
	id  string
	run func() error
}

type JobFinishedEvent struct {
	Id     string
	Result error
}

// UniqueJobProcessor runs jobs from a fixed-size worker pool. A job id
// that is already queued or running is dropped instead of enqueued again.
type UniqueJobProcessor struct {
	// JobFinishedChannel must be consumed or the processor stalls.
	JobFinishedChannel chan JobFinishedEvent

	poolSize int
	queue    []queuedJob
	running  map[string]bool

	newJobChannel              chan queuedJob
	jobFinishedInternalChannel chan JobFinishedEvent
}

func NewUniqueJobProcessor(poolSize int) *UniqueJobProcessor {
	return &UniqueJobProcessor{
		JobFinishedChannel:         make(chan JobFinishedEvent),
		poolSize:                   poolSize,
		queue:                      nil,
		running:                    make(map[string]bool),
		newJobChannel:              make(chan queuedJob),
		jobFinishedInternalChannel: make(chan JobFinishedEvent),
	}
}

func (u *UniqueJobProcessor) Start(ctx context.Context) {
	for {
		select {
		case job := <-u.newJobChannel:
			if u.isTracked(job.id) {
				continue
			}
			u.queue = append(u.queue, job)
			u.fillPool()

		case event := <-u.jobFinishedInternalChannel:
			delete(u.running, event.Id)
			u.fillPool()

		case <-ctx.Done():
			return
		}
	}
}

// Process submits a job. It blocks until the processor loop accepts it.
func (u *UniqueJobProcessor) Process(id string, run func() error) {
	u.newJobChannel <- queuedJob{id: id, run: run}
}

func (u *UniqueJobProcessor) isTracked(id string) bool {
	if u.running[id] {
		return true
	}
	return slices.ContainsFunc(u.queue, func(job queuedJob) bool {
		return job.id == id
	})
}

func (u *UniqueJobProcessor) fillPool() {
	for len(u.running) < u.poolSize && len(u.queue) > 0 {
		job := u.queue[0]
		u.queue = u.queue[1:]
		u.running[job.id] = true

		go func() {
			err := job.run()

			event := JobFinishedEvent{Id: job.id, Result: err}
			u.jobFinishedInternalChannel <- event
			u.JobFinishedChannel <- event
		}()
	}
}
