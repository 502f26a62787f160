package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitboard/transitboard/internal/arrivals"
	"github.com/transitboard/transitboard/internal/board"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func snapshotWith(t *testing.T, minutes int) *board.Snapshot {
	t.Helper()
	b := board.New([]board.Slot{{Line: 1, Route: "UP-N", Stop: "RAVENSWOOD"}}, nil)
	q := arrivals.Queues{Inbound: []arrivals.Record{{Route: "UP-N", Direction: arrivals.Inbound, Minutes: minutes, LineNumber: 1}}}
	snap, err := b.PublishArrivals([]arrivals.Queues{q}, nil, 1700000000, time.Unix(1700000000, 0))
	require.NoError(t, err)
	return snap
}

func TestLatest_Empty(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSaveAndLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, snapshotWith(t, 3), time.Unix(1700000010, 0))
	require.NoError(t, err)
	id, err := s.Save(ctx, snapshotWith(t, 7), time.Unix(1700000040, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	snap, takenAt, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000040), takenAt.Unix())
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 7, snap.Lines[0].Inbound[0].Minutes)
	assert.Equal(t, uint64(1700000000), snap.FeedTimestamp)
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := range 5 {
		_, err := s.Save(ctx, snapshotWith(t, i), time.Unix(int64(1700000000+i), 0))
		require.NoError(t, err)
	}

	removed, err := s.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap, _, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Lines[0].Inbound[0].Minutes)
}

func TestOpen_FileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "board.db")

	s, err := Open(ctx, path, nil)
	require.NoError(t, err)
	_, err = s.Save(ctx, snapshotWith(t, 12), time.Unix(1700000000, 0))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	snap, _, err := reopened.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, snap.Lines[0].Inbound[0].Minutes)
}
