package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUReplacer_VictimIsLeastRecentlyInserted(t *testing.T) {
	r := NewLRUReplacer()
	r.Insert(1)
	r.Insert(2)
	r.Insert(3)

	victim, err := r.Victim()
	require.NoError(t, err)
	require.Equal(t, 1, victim, "the first-inserted frame should be evicted first")

	victim, err = r.Victim()
	require.NoError(t, err)
	require.Equal(t, 2, victim)
}

func TestLRUReplacer_ReinsertMovesToFront(t *testing.T) {
	r := NewLRUReplacer()
	r.Insert(1)
	r.Insert(2)
	r.Insert(3)
	r.Insert(1) // frame 1 becomes most-recently-inserted again

	victim, err := r.Victim()
	require.NoError(t, err)
	require.Equal(t, 2, victim, "frame 1 should no longer be the oldest entry")

	victim, err = r.Victim()
	require.NoError(t, err)
	require.Equal(t, 3, victim)

	victim, err = r.Victim()
	require.NoError(t, err)
	require.Equal(t, 1, victim)
}

func TestLRUReplacer_Erase(t *testing.T) {
	r := NewLRUReplacer()
	r.Insert(1)
	r.Insert(2)

	require.True(t, r.Erase(1))
	require.False(t, r.Erase(1), "erasing an already-erased frame should report false")
	require.Equal(t, 1, r.Size())

	victim, err := r.Victim()
	require.NoError(t, err)
	require.Equal(t, 2, victim)
}

func TestLRUReplacer_VictimEmptyReturnsError(t *testing.T) {
	r := NewLRUReplacer()
	_, err := r.Victim()
	require.ErrorIs(t, err, ErrReplacerEmpty)
}

func TestLRUReplacer_Size(t *testing.T) {
	r := NewLRUReplacer()
	require.Equal(t, 0, r.Size())
	r.Insert(1)
	r.Insert(2)
	require.Equal(t, 2, r.Size())
	_, err := r.Victim()
	require.NoError(t, err)
	require.Equal(t, 1, r.Size())
}
