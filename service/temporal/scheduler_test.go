package temporal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRelayWallet = "RelayWa11etAddre55xxxxxxxxxxxxxxxxxxxxxxxxx"

func TestScheduler_UpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	sched := NewMockScheduler()

	require.False(t, sched.HasSchedule(testRelayWallet))

	err := sched.UpsertSweepSchedule(ctx, testRelayWallet, 60*time.Second)
	require.NoError(t, err)
	require.True(t, sched.HasSchedule(testRelayWallet))

	interval, ok := sched.ScheduleInterval(testRelayWallet)
	require.True(t, ok)
	assert.Equal(t, 60*time.Second, interval)

	// Upserting again updates the interval in place.
	err = sched.UpsertSweepSchedule(ctx, testRelayWallet, 30*time.Second)
	require.NoError(t, err)
	interval, _ = sched.ScheduleInterval(testRelayWallet)
	assert.Equal(t, 30*time.Second, interval)

	err = sched.DeleteSweepSchedule(ctx, testRelayWallet)
	require.NoError(t, err)
	assert.False(t, sched.HasSchedule(testRelayWallet))
}

func TestScheduler_DeleteMissing(t *testing.T) {
	sched := NewMockScheduler()

	err := sched.DeleteSweepSchedule(context.Background(), testRelayWallet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestScheduler_InjectedErrors(t *testing.T) {
	ctx := context.Background()
	sched := NewMockScheduler()

	upsertErr := errors.New("temporal unavailable")
	sched.SetUpsertError(upsertErr)
	err := sched.UpsertSweepSchedule(ctx, testRelayWallet, time.Minute)
	assert.ErrorIs(t, err, upsertErr)

	deleteErr := errors.New("temporal unavailable")
	sched.SetDeleteError(deleteErr)
	err = sched.DeleteSweepSchedule(ctx, testRelayWallet)
	assert.ErrorIs(t, err, deleteErr)
}
