package shutdown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitForShutdownRunsCleanupWhenContextEnds(t *testing.T) {
	rootCtx, cancel := context.WithCancel(context.Background())
	cancel()

	cleaned := false
	err := WaitForShutdown(rootCtx, time.Second, func(timeoutCtx context.Context) {
		assert.NoError(t, timeoutCtx.Err())
		cleaned = true
	})

	assert.NoError(t, err)
	assert.True(t, cleaned)
}

func TestCleanUpReportsDeadline(t *testing.T) {
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	err := cleanUp(timeoutCtx, func(context.Context) { <-release })

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
