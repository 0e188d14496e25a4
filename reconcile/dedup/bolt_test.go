package dedup_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmarket/purchase-settlement-go/reconcile/dedup"
)

func givenStore(t *testing.T) *dedup.BoltStore {
	t.Helper()

	store, err := dedup.NewBoltStore(filepath.Join(t.TempDir(), "dedup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func Test_BoltStore_Seen_UnknownEventID(t *testing.T) {
	// arrange
	store := givenStore(t)

	// act
	seen, err := store.Seen("evt_never_seen")

	// assert
	require.NoError(t, err)
	assert.False(t, seen)
}

func Test_BoltStore_MarkProcessed_ThenSeen(t *testing.T) {
	// arrange
	store := givenStore(t)

	// act
	err := store.MarkProcessed("evt_123")

	// assert
	require.NoError(t, err)

	seen, err := store.Seen("evt_123")
	require.NoError(t, err)
	assert.True(t, seen)
}

func Test_BoltStore_MarkProcessed_IsIdempotent(t *testing.T) {
	// arrange
	store := givenStore(t)
	require.NoError(t, store.MarkProcessed("evt_123"))

	// act
	err := store.MarkProcessed("evt_123")

	// assert
	require.NoError(t, err)

	seen, err := store.Seen("evt_123")
	require.NoError(t, err)
	assert.True(t, seen)
}
