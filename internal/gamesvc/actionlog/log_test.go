package actionlog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppendAssignsGaplessSequences(t *testing.T) {
	l := New("room-1")
	now := time.Now()

	require.Equal(t, uint64(1), l.Append("deal", json.RawMessage(`{}`), 1, now))
	require.Equal(t, uint64(2), l.Append("move", json.RawMessage(`{}`), 2, now))
	require.Equal(t, uint64(3), l.Append("move", json.RawMessage(`{}`), 3, now))
	require.Equal(t, uint64(3), l.Last())
}

func TestSinceReturnsOrderedTail(t *testing.T) {
	l := New("room-1")
	for i := 1; i <= 5; i++ {
		l.Append("move", nil, uint64(i), time.Now())
	}

	entries, err := l.Since(2)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		require.Equal(t, uint64(3+i), e.Sequence)
		require.Equal(t, "room-1", e.RoomId)
	}

	entries, err = l.Since(5)
	require.NoError(t, err)
	require.Empty(t, entries, "nothing newer than the last sequence")
}

func TestTruncationForcesSnapshot(t *testing.T) {
	l := New("room-1")
	for i := 1; i <= 5; i++ {
		l.Append("move", nil, uint64(i), time.Now())
	}

	l.TruncateThrough(3)

	_, err := l.Since(0)
	require.ErrorIs(t, err, ErrSnapshotRequired)
	_, err = l.Since(2)
	require.ErrorIs(t, err, ErrSnapshotRequired)

	entries, err := l.Since(3)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(4), entries[0].Sequence)

	// appends continue the sequence after truncation
	require.Equal(t, uint64(6), l.Append("move", nil, 6, time.Now()))
}
