package aggregator

import (
	"testing"
	"time"
)

func TestShardWorkerDropsWhenAllFragmentsFailSecondaryRecheck(t *testing.T) {
	sink := newMemorySink("memory")
	w := NewShardWorker(ShardConfig{
		ID:                0,
		ExpectedFragments: 1,
		FrameTimeout:      time.Second,
		Sinks:             []Sink{sink},
	})
	go w.Run()
	defer w.Stop()

	bad := testFragment(1, 1, 1, 8)
	bad.Header[28] = 0 // corrupt the header's magic word

	w.Insert(bad)
	waitForCount(t, func() int { return int(w.Stats().FramesDropped) }, 1, time.Second)

	if sink.count() != 0 {
		t.Fatalf("expected no record published, got %d", sink.count())
	}
}

func TestShardWorkerExcludesOnlyBadFragment(t *testing.T) {
	sink := newMemorySink("memory")
	w := NewShardWorker(ShardConfig{
		ID:                0,
		ExpectedFragments: 2,
		FrameTimeout:      time.Second,
		Sinks:             []Sink{sink},
	})
	go w.Run()
	defer w.Stop()

	good := testFragment(1, 1, 1, 8)
	bad := testFragment(1, 1, 2, 8)
	bad.Header[28] = 0

	w.Insert(good)
	w.Insert(bad)
	waitForCount(t, sink.count, 1, time.Second)

	rec := sink.recordsSnapshot()[0]
	status := rec[15*4+3]
	if status&0x7F != 1 {
		t.Fatalf("fragment count = %d, want 1 (bad fragment excluded)", status&0x7F)
	}
	if w.Stats().BuildErrors != 1 {
		t.Fatalf("BuildErrors = %d, want 1", w.Stats().BuildErrors)
	}
}

func TestShardWorkerInsertDoesNotBlockOnSlowSink(t *testing.T) {
	unblock := make(chan struct{})
	defer close(unblock)
	sink := &stuckSink{unblock: unblock}

	w := NewShardWorker(ShardConfig{
		ID:                0,
		ExpectedFragments: 1,
		FrameTimeout:      time.Second,
		Sinks:             []Sink{sink},
	})
	go w.Run()
	defer w.Stop()

	done := make(chan struct{})
	go func() {
		w.Insert(testFragment(1, 1, 1, 8))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Insert blocked on a stuck sink")
	}
}
