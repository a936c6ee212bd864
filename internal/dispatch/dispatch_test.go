package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmit_RunsJobAsynchronously(t *testing.T) {
	d := New(Config{MaxConcurrent: 2}, nil)
	var ran int32
	var wg sync.WaitGroup
	wg.Add(1)
	ok := d.Submit("test", func() {
		atomic.AddInt32(&ran, 1)
		wg.Done()
	})
	if !ok {
		t.Fatal("expected submit to succeed")
	}
	wg.Wait()
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("expected job to run once, got %d", ran)
	}
}

func TestSubmit_DropsWhenAtCapacity(t *testing.T) {
	d := New(Config{MaxConcurrent: 1}, nil)
	block := make(chan struct{})
	started := make(chan struct{})

	if !d.Submit("blocker", func() {
		close(started)
		<-block
	}) {
		t.Fatal("expected first submit to succeed")
	}
	<-started

	if d.Submit("overflow", func() {}) {
		t.Fatal("expected second submit to be dropped while at capacity")
	}
	close(block)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if d.Stats().Rejected == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected rejected count to reach 1")
}

func TestSubmit_RecoversFromPanic(t *testing.T) {
	d := New(Config{MaxConcurrent: 1}, nil)
	done := make(chan struct{})
	d.Submit("panicker", func() {
		defer close(done)
		panic("boom")
	})
	<-done

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if d.Stats().Active == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected dispatcher to recover slot after panicking job")
}
