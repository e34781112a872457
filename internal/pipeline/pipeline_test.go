package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueueCapacityNeverExceeded(t *testing.T) {
	q := NewQueue(3)
	var maxLen int64
	done := make(chan struct{})

	go func() {
		for i := 0; i < 50; i++ {
			q.Push(i)
			if l := int64(q.Len()); l > atomic.LoadInt64(&maxLen) {
				atomic.StoreInt64(&maxLen, l)
			}
		}
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	for i := 0; i < 50; i++ {
		q.Pop()
		time.Sleep(time.Millisecond)
	}
	<-done

	if maxLen > 3 {
		t.Fatalf("queue length exceeded capacity: got %d, cap 3", maxLen)
	}
}

func TestQueuePushBlocksWhenFull(t *testing.T) {
	q := NewQueue(1)
	q.Push(1)

	pushed := make(chan struct{})
	go func() {
		q.Push(2)
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("Push on a full queue returned before a Pop freed space")
	case <-time.After(20 * time.Millisecond):
	}

	q.Pop()
	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("Push did not unblock after a Pop freed space")
	}
}

func TestBarrierCorrectness(t *testing.T) {
	b := NewBarrier()
	b.SetTaskCount(3)

	waitDone := make(chan struct{})
	go func() {
		b.Wait()
		close(waitDone)
	}()

	b.TaskFinished()
	b.TaskFinished()

	select {
	case <-waitDone:
		t.Fatal("Wait returned before all tasks finished")
	case <-time.After(20 * time.Millisecond):
	}

	b.TaskFinished()
	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the Nth TaskFinished")
	}
}

func TestBarrierZeroTasksReturnsImmediately(t *testing.T) {
	b := NewBarrier()
	b.SetTaskCount(0)
	done := make(chan struct{})
	go func() {
		b.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return immediately for N=0")
	}
}

func TestChainForwardsEveryTask(t *testing.T) {
	n := 20
	a := NewStage("a", 4, 3, nil)
	b := NewStage("b", 4, 2, nil)
	Chain(a, b)

	var bCount int64
	a.SetTaskCount(n)
	b.SetTaskCount(n)

	var mu sync.Mutex
	seen := map[int]bool{}

	b.Start(context.Background(), func(_ context.Context, idx int) error {
		mu.Lock()
		seen[idx] = true
		mu.Unlock()
		atomic.AddInt64(&bCount, 1)
		return nil
	})
	a.Start(context.Background(), func(_ context.Context, idx int) error {
		return nil
	})

	for i := 0; i < n; i++ {
		a.Push(i)
	}

	a.Wait()
	b.Wait()
	a.Join()
	b.Join()

	if int(bCount) != n {
		t.Fatalf("expected %d tasks forwarded to b, got %d", n, bCount)
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			t.Fatalf("task %d never reached stage b", i)
		}
	}
}
