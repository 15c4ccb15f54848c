package utils_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/geofleet/trackd/internal/utils"
)

func TestJobQueue_ExecutesSubmittedJobs(t *testing.T) {
	queue := utils.NewJobQueue(4, 16)

	var executed int32
	for i := 0; i < 10; i++ {
		ok := queue.TrySubmit(func() {
			atomic.AddInt32(&executed, 1)
		})
		assert.True(t, ok)
	}

	queue.Shutdown()
	assert.Equal(t, int32(10), atomic.LoadInt32(&executed))
}

func TestJobQueue_SingleWorkerPreservesOrder(t *testing.T) {
	queue := utils.NewJobQueue(1, 16)

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		ok := queue.TrySubmit(func() {
			order = append(order, i)
		})
		assert.True(t, ok)
	}

	queue.Shutdown()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestJobQueue_TrySubmitReturnsFalseWhenFull(t *testing.T) {
	queue := utils.NewJobQueue(1, 1)

	started := make(chan struct{})
	release := make(chan struct{})
	ok := queue.TrySubmit(func() {
		close(started)
		<-release
	})
	assert.True(t, ok)

	// Wait until the worker is busy so the queue slot is free again.
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("worker never picked up the blocking job")
	}

	assert.True(t, queue.TrySubmit(func() {}), "queued job should fit")
	assert.False(t, queue.TrySubmit(func() {}), "queue should be full")

	close(release)
	queue.Shutdown()
}

func TestJobQueue_TrySubmitAfterShutdownReturnsFalse(t *testing.T) {
	queue := utils.NewJobQueue(1, 4)
	queue.Shutdown()

	assert.False(t, queue.TrySubmit(func() {}))
}

func TestJobQueue_ShutdownDrainsPendingJobs(t *testing.T) {
	queue := utils.NewJobQueue(1, 8)

	started := make(chan struct{})
	release := make(chan struct{})
	queue.TrySubmit(func() {
		close(started)
		<-release
	})
	<-started

	var executed int32
	for i := 0; i < 5; i++ {
		assert.True(t, queue.TrySubmit(func() {
			atomic.AddInt32(&executed, 1)
		}))
	}

	close(release)
	queue.Shutdown()
	assert.Equal(t, int32(5), atomic.LoadInt32(&executed))
}
