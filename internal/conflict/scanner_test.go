package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/homecare-scheduler/pkg/logger"
	"github.com/carelink/homecare-scheduler/pkg/types"
)

func TestScanner_PicksUpConflicts(t *testing.T) {
	svc, repo, _ := setupService(t)
	seedDoubleBooking(t, repo)

	scanner := NewScanner(svc, 10*time.Millisecond, logger.New("error"))
	scanner.Start()
	defer scanner.Stop()

	assert.Eventually(t, func() bool {
		conflicts, err := repo.GetConflicts(context.Background(), types.ConflictPending)
		return err == nil && len(conflicts) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScanner_StartStopIdempotent(t *testing.T) {
	svc, _, _ := setupService(t)
	scanner := NewScanner(svc, time.Hour, logger.New("error"))

	// Stop before start is a no-op
	scanner.Stop()

	scanner.Start()
	scanner.Start()
	scanner.Stop()
	scanner.Stop()

	// Restartable after a full stop
	scanner.Start()
	scanner.Stop()
}

func TestScanner_StopCancelsInFlightScan(t *testing.T) {
	svc, repo, _ := setupService(t)
	seedDoubleBooking(t, repo)

	scanner := NewScanner(svc, time.Millisecond, logger.New("error"))
	scanner.Start()
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		scanner.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scanner did not stop in time")
	}

	// Scans that completed before the stop left persisted conflicts behind
	conflicts, err := repo.GetConflicts(context.Background(), "")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(conflicts), 1)
}
