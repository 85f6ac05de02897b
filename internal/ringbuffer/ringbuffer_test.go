package ringbuffer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTryEnqueueDequeueFIFO(t *testing.T) {
	b := New[int](4)
	require.Equal(t, Ok, b.TryEnqueue(1))
	require.Equal(t, Ok, b.TryEnqueue(2))
	require.Equal(t, 2, b.Len())

	v, res := b.DequeueBlocking(time.Second)
	require.Equal(t, Ok, res)
	require.Equal(t, 1, v)

	v, res = b.DequeueBlocking(time.Second)
	require.Equal(t, Ok, res)
	require.Equal(t, 2, v)
}

func TestTryEnqueueReturnsFullAtCapacity(t *testing.T) {
	b := New[int](2)
	require.Equal(t, Ok, b.TryEnqueue(1))
	require.Equal(t, Ok, b.TryEnqueue(2))
	require.Equal(t, Full, b.TryEnqueue(3))
}

func TestDequeueBlockingTimesOutWhenEmpty(t *testing.T) {
	b := New[int](2)
	_, res := b.DequeueBlocking(20 * time.Millisecond)
	require.Equal(t, Timeout, res)
}

func TestEnqueueBlockingTimesOutWhenFull(t *testing.T) {
	b := New[int](1)
	require.Equal(t, Ok, b.TryEnqueue(1))
	res := b.EnqueueBlocking(2, 20*time.Millisecond)
	require.Equal(t, Timeout, res)
}

func TestEnqueueBlockingUnblocksWhenRoomFrees(t *testing.T) {
	b := New[int](1)
	require.Equal(t, Ok, b.TryEnqueue(1))

	done := make(chan Result, 1)
	go func() { done <- b.EnqueueBlocking(2, time.Second) }()

	time.Sleep(10 * time.Millisecond)
	_, res := b.DequeueBlocking(time.Second)
	require.Equal(t, Ok, res)

	select {
	case r := <-done:
		require.Equal(t, Ok, r)
	case <-time.After(time.Second):
		t.Fatal("EnqueueBlocking did not unblock after room freed")
	}
}

func TestShutdownWakesBlockedCallersAndDrainsRemaining(t *testing.T) {
	b := New[int](2)
	require.Equal(t, Ok, b.TryEnqueue(1))

	dequeueDone := make(chan Result, 1)
	go func() {
		_, res := b.DequeueBlocking(time.Second)
		require.Equal(t, Ok, res) // drains the queued item first
		_, res2 := b.DequeueBlocking(time.Second)
		dequeueDone <- res2
	}()

	time.Sleep(10 * time.Millisecond)
	b.Shutdown()

	select {
	case res := <-dequeueDone:
		require.Equal(t, Shutdown, res)
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not wake blocked DequeueBlocking")
	}

	require.Equal(t, Shutdown, b.TryEnqueue(99))
}

func TestConcurrentProducersConsumers(t *testing.T) {
	b := New[int](8)
	const n = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for b.EnqueueBlocking(i, 50*time.Millisecond) != Ok {
			}
		}
	}()

	seen := 0
	for seen < n {
		_, res := b.DequeueBlocking(time.Second)
		if res == Ok {
			seen++
		}
	}
	wg.Wait()
	require.Equal(t, n, seen)
}
