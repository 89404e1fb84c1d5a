package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

func TestEventStoreMergeDeduplicates(t *testing.T) {
	store := NewEventStore()

	added := store.Merge(testProject, []types.CallEvent{
		{ID: "b", Caller: alice, Entrypoint: "move", ExecutedAt: 20},
		{ID: "a", Caller: alice, Entrypoint: "spawn", ExecutedAt: 10},
	})
	assert.Equal(t, 2, added)

	added = store.Merge(testProject, []types.CallEvent{
		{ID: "a", Caller: alice, Entrypoint: "spawn", ExecutedAt: 10},
		{ID: "c", Caller: bob, Entrypoint: "spawn", ExecutedAt: 15},
		{Caller: bob, Entrypoint: "move", ExecutedAt: 30},
		{Caller: bob, Entrypoint: "move", ExecutedAt: 30},
	})
	assert.Equal(t, 2, added)

	events := store.Events(testProject)
	require.Len(t, events, 4)
	assert.Equal(t, []string{"a", "c", "b", ""}, []string{events[0].ID, events[1].ID, events[2].ID, events[3].ID})
	assert.Equal(t, 4, store.Len(testProject))
}

func TestEventStoreSnapshotsAreStable(t *testing.T) {
	store := NewEventStore()
	store.Merge(testProject, []types.CallEvent{{ID: "a", ExecutedAt: 1}})

	snapshot := store.Events(testProject)
	store.Merge(testProject, []types.CallEvent{{ID: "b", ExecutedAt: 2}})

	assert.Len(t, snapshot, 1)
	assert.Len(t, store.Events(testProject), 2)
}

func TestEventStorePruneAndClear(t *testing.T) {
	store := NewEventStore()
	store.Merge("a", []types.CallEvent{{ID: "1", ExecutedAt: 10}, {ID: "2", ExecutedAt: 20}})
	store.Merge("b", []types.CallEvent{{ID: "3", ExecutedAt: 5}})

	assert.Equal(t, 2, store.Prune(15))
	assert.Equal(t, []string{"a"}, store.Projects())
	assert.Equal(t, 1, store.Len("a"))

	// a pruned event can be merged again
	assert.Equal(t, 1, store.Merge("a", []types.CallEvent{{ID: "1", ExecutedAt: 10}}))

	store.Clear()
	assert.Empty(t, store.Projects())
	assert.Nil(t, store.Events("a"))
}

func TestEventStoreConcurrentMerge(t *testing.T) {
	store := NewEventStore()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				store.Merge(testProject, []types.CallEvent{{ID: string(rune('a'+w)) + "-" + string(rune('0'+i%10)), ExecutedAt: int64(i)}})
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 80, store.Len(testProject))
}
