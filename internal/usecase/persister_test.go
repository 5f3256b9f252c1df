package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersisterRunsTasksInOrder(t *testing.T) {
	p := NewPersister(16, time.Second)

	var (
		mu    sync.Mutex
		order []int
	)

	for i := 0; i < 5; i++ {
		p.Enqueue("task", func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()

			if i == 2 {
				return errors.New("storage unavailable")
			}

			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(order) == 5
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPersisterDrainsOnShutdown(t *testing.T) {
	p := NewPersister(16, time.Second)

	ran := 0
	for i := 0; i < 3; i++ {
		p.Enqueue("task", func(context.Context) error {
			ran++
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, 3, ran)
}

func TestPersisterDropsWhenFull(t *testing.T) {
	p := NewPersister(1, time.Second)

	ran := 0
	for i := 0; i < 3; i++ {
		p.Enqueue("task", func(context.Context) error {
			ran++
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, 1, ran)
}

func TestPersisterTaskTimeout(t *testing.T) {
	p := NewPersister(1, 10*time.Millisecond)

	var deadline bool
	p.Enqueue("slow", func(ctx context.Context) error {
		<-ctx.Done()
		deadline = errors.Is(ctx.Err(), context.DeadlineExceeded)
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.True(t, deadline)
}
