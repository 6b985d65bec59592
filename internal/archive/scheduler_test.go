package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchiver struct {
	cutoffs  []time.Time
	archived int64
	err      error
}

func (a *fakeArchiver) ArchiveAll(_ context.Context, before time.Time) (int64, error) {
	a.cutoffs = append(a.cutoffs, before)
	return a.archived, a.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunUsesRetentionCutoff(t *testing.T) {
	fa := &fakeArchiver{archived: 12}
	s := NewScheduler(fa, 30, testLogger())

	require.NoError(t, s.Run(context.Background()))
	require.Len(t, fa.cutoffs, 1)

	want := time.Now().UTC().Add(-30 * 24 * time.Hour)
	assert.WithinDuration(t, want, fa.cutoffs[0], time.Minute)
}

func TestRunPropagatesArchiverError(t *testing.T) {
	fa := &fakeArchiver{err: errors.New("bucket gone")}
	s := NewScheduler(fa, 30, testLogger())

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")
}

func TestRunCronRejectsBadExpression(t *testing.T) {
	s := NewScheduler(&fakeArchiver{}, 30, testLogger())

	err := s.RunCron(context.Background(), "* * *")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "5 fields")
}

func TestRunCronStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScheduler(&fakeArchiver{}, 30, testLogger())
	err := s.RunCron(ctx, "0 3 1 * *")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseCronField(t *testing.T) {
	f, err := parseCronField("*")
	require.NoError(t, err)
	assert.True(t, f.matches(0))
	assert.True(t, f.matches(59))

	f, err = parseCronField("1,15")
	require.NoError(t, err)
	assert.True(t, f.matches(1))
	assert.True(t, f.matches(15))
	assert.False(t, f.matches(2))

	_, err = parseCronField("every")
	assert.Error(t, err)
}

func TestParseCronFieldCount(t *testing.T) {
	_, err := parseCron("0 3 1 *")
	assert.Error(t, err)

	_, err = parseCron("0 3 1 * * *")
	assert.Error(t, err)

	_, err = parseCron("0 3 1 * *")
	assert.NoError(t, err)
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2026, 8, 24, 10, 30, 45, 0, time.UTC)

	// Monthly schedule: next 1st of the month at 03:00.
	next, err := nextCronTime("0 3 1 * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC), next)

	// Daily at 03:00 rolls to the next day once today's slot has passed.
	next, err = nextCronTime("0 3 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC), next)

	// Every minute: the next minute boundary.
	next, err = nextCronTime("* * * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 24, 10, 31, 0, 0, time.UTC), next)

	// Day-of-week field: 2026-08-24 is a Monday, so the next Sunday
	// (weekday 0) at noon is the 30th.
	next, err = nextCronTime("0 12 * * 0", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), next)
}
