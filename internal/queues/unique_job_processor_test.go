package queues

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestProcess_DropsDuplicateOfRunningJob(t *testing.T) {
	processor := NewUniqueJobProcessor(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go processor.Start(ctx)

	var runs atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	processor.Process("app-1", func() error {
		runs.Add(1)
		close(started)
		<-release
		return nil
	})
	<-started

	processor.Process("app-1", func() error {
		runs.Add(1)
		return nil
	})

	close(release)
	event := <-processor.JobFinishedChannel
	if event.Id != "app-1" || event.Result != nil {
		t.Fatalf("Unexpected event %+v", event)
	}

	// A distinct job flushes the loop; if the duplicate had been queued
	// instead of dropped it would have run by now.
	processor.Process("app-2", func() error { return nil })
	<-processor.JobFinishedChannel

	if runs.Load() != 1 {
		t.Fatalf("Expected the duplicate of a running job to be dropped, got %d runs", runs.Load())
	}
}

func TestProcess_DropsDuplicateOfQueuedJob(t *testing.T) {
	processor := NewUniqueJobProcessor(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go processor.Start(ctx)

	var queuedRuns atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	processor.Process("blocker", func() error {
		close(started)
		<-release
		return nil
	})
	<-started

	queued := func() error {
		queuedRuns.Add(1)
		return nil
	}
	processor.Process("app-1", queued)
	processor.Process("app-1", queued)

	close(release)
	<-processor.JobFinishedChannel

	event := <-processor.JobFinishedChannel
	if event.Id != "app-1" {
		t.Fatalf("Expected app-1 to run after the blocker, got %q", event.Id)
	}
	if queuedRuns.Load() != 1 {
		t.Fatalf("Expected the duplicate to be dropped, got %d runs", queuedRuns.Load())
	}
}

func TestProcess_PoolOfOneSerializes(t *testing.T) {
	processor := NewUniqueJobProcessor(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go processor.Start(ctx)

	var concurrent atomic.Int32
	var peak atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	job := func() error {
		current := concurrent.Add(1)
		if current > peak.Load() {
			peak.Store(current)
		}
		<-release
		concurrent.Add(-1)
		return nil
	}

	processor.Process("app-1", func() error {
		close(started)
		return job()
	})
	<-started
	processor.Process("app-2", job)
	processor.Process("app-3", job)

	close(release)
	for range 3 {
		<-processor.JobFinishedChannel
	}

	if peak.Load() != 1 {
		t.Fatalf("Expected at most 1 concurrent job, got %d", peak.Load())
	}
}
