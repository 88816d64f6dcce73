package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOMutexOrdersWaitersAndNeverLeavesATimedOutWaiterHoldingIt(t *testing.T) {
	m := NewFIFOMutex()
	require.NoError(t, m.Lock(context.Background()))

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, m.Lock(context.Background()))
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			m.Unlock()
		}()
		time.Sleep(10 * time.Millisecond) // stabilize arrival order
	}

	m.Unlock()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestFIFOMutexTimeoutRemovesWaiterAndLockStaysHeldByOwner(t *testing.T) {
	m := NewFIFOMutex()
	require.NoError(t, m.Lock(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.Lock(ctx)
	assert.Error(t, err)
	assert.Equal(t, 0, m.QueueLen())

	m.Unlock()
	require.NoError(t, m.Lock(context.Background()))
	m.Unlock()
}

func TestFIFOMutexFreeWhenAllWaitersTimeOut(t *testing.T) {
	m := NewFIFOMutex()
	require.NoError(t, m.Lock(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			_ = m.Lock(ctx)
		}()
	}
	wg.Wait()
	m.Unlock()

	// Lock is free: a fresh acquire should succeed immediately.
	done := make(chan struct{})
	go func() {
		_ = m.Lock(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock never became free")
	}
}

func TestRWLockAllowsConcurrentReaders(t *testing.T) {
	l := NewRWLock()
	require.NoError(t, l.RLock(context.Background()))
	require.NoError(t, l.RLock(context.Background()))
	l.RUnlock()
	l.RUnlock()
}

func TestRWLockWriterPreferenceQueuesNewReaders(t *testing.T) {
	l := NewRWLock()
	require.NoError(t, l.RLock(context.Background()))

	writerDone := make(chan struct{})
	go func() {
		require.NoError(t, l.Lock(context.Background()))
		close(writerDone)
		l.Unlock()
	}()
	time.Sleep(20 * time.Millisecond) // writer is now waiting

	var readerAdmitted int32
	readerStarted := make(chan struct{})
	go func() {
		close(readerStarted)
		require.NoError(t, l.RLock(context.Background()))
		atomic.StoreInt32(&readerAdmitted, 1)
		l.RUnlock()
	}()
	<-readerStarted
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&readerAdmitted), "new reader must queue behind waiting writer")

	l.RUnlock() // release the original reader, admitting the writer
	<-writerDone

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&readerAdmitted))
}

func TestIndexingLockRejectsConcurrentAcquire(t *testing.T) {
	l := NewIndexingLock()
	release, err := l.Acquire(context.Background(), "/proj/a")
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), "/proj/b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/proj/a")

	release()

	release2, err := l.Acquire(context.Background(), "/proj/b")
	require.NoError(t, err)
	release2()
}
