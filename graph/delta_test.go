package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nornicdb/txgraph/graph"
	"github.com/nornicdb/txgraph/graph/memstore"
)

func baseWith(triples ...graph.Triple) graph.Store {
	s := memstore.New()
	for _, t := range triples {
		_ = s.Add(t)
	}
	return s
}

func TestDeltaGraph_ContainsFollowsOverlayRules(t *testing.T) {
	base := baseWith(graph.NewTriple("a", "p", "1"), graph.NewTriple("b", "p", "2"))
	d, err := graph.NewDeltaGraph(base)
	require.NoError(t, err)

	assert.True(t, d.Contains(graph.NewTriple("a", "p", "1")))
	assert.False(t, d.Contains(graph.NewTriple("c", "p", "3")))

	require.NoError(t, d.Delete(graph.NewTriple("a", "p", "1")))
	assert.False(t, d.Contains(graph.NewTriple("a", "p", "1")))

	require.NoError(t, d.Add(graph.NewTriple("c", "p", "3")))
	assert.True(t, d.Contains(graph.NewTriple("c", "p", "3")))
}

func TestDeltaGraph_AddDeleteRoundTrip(t *testing.T) {
	t.Run("add then delete a triple not in base returns to no changes", func(t *testing.T) {
		base := baseWith()
		d, err := graph.NewDeltaGraph(base)
		require.NoError(t, err)

		tr := graph.NewTriple("x", "y", "z")
		require.NoError(t, d.Add(tr))
		require.NoError(t, d.Delete(tr))

		assert.False(t, d.HasChanges())
		assert.False(t, d.Contains(tr))
	})

	t.Run("add then delete a triple already in base yields a tombstone", func(t *testing.T) {
		tr := graph.NewTriple("x", "y", "z")
		base := baseWith(tr)
		d, err := graph.NewDeltaGraph(base)
		require.NoError(t, err)

		require.NoError(t, d.Add(tr)) // no-op: already visible via base
		require.NoError(t, d.Delete(tr))

		assert.True(t, d.HasChanges())
		assert.Equal(t, map[graph.Triple]struct{}{tr: {}}, d.Deletions())
		assert.False(t, d.Contains(tr))
	})

	t.Run("delete then add yields membership true with no residual tombstone", func(t *testing.T) {
		tr := graph.NewTriple("x", "y", "z")
		base := baseWith(tr)
		d, err := graph.NewDeltaGraph(base)
		require.NoError(t, err)

		require.NoError(t, d.Delete(tr))
		require.NoError(t, d.Add(tr))

		assert.True(t, d.Contains(tr))
		_, tombstoned := d.Deletions()[tr]
		assert.False(t, tombstoned)
	})
}

func TestDeltaGraph_Size(t *testing.T) {
	base := baseWith(graph.NewTriple("a", "p", "1"), graph.NewTriple("b", "p", "2"))
	d, err := graph.NewDeltaGraph(base)
	require.NoError(t, err)

	require.NoError(t, d.Delete(graph.NewTriple("a", "p", "1")))
	require.NoError(t, d.Add(graph.NewTriple("c", "p", "3")))

	assert.Equal(t, 2, d.Size())
}

func TestDeltaGraph_FindOrdersBaseThenAdditionsWithoutInterleaving(t *testing.T) {
	base := baseWith(graph.NewTriple("a", "p", "1"), graph.NewTriple("b", "p", "2"))
	d, err := graph.NewDeltaGraph(base)
	require.NoError(t, err)

	require.NoError(t, d.Delete(graph.NewTriple("a", "p", "1")))
	require.NoError(t, d.Add(graph.NewTriple("c", "p", "3")))

	var got []graph.Triple
	it := d.Find(graph.WithPredicate("p"))
	for it.Next() {
		got = append(got, it.Triple())
	}
	require.NoError(t, it.Err())

	assert.ElementsMatch(t, []graph.Triple{
		graph.NewTriple("b", "p", "2"),
		graph.NewTriple("c", "p", "3"),
	}, got)
	assert.Equal(t, 2, len(got))
}

func TestDeltaGraph_ChainedBase(t *testing.T) {
	base := baseWith(graph.NewTriple("a", "p", "1"))
	first, err := graph.NewDeltaGraph(base)
	require.NoError(t, err)
	require.NoError(t, first.Add(graph.NewTriple("b", "p", "2")))

	second, err := graph.NewDeltaGraph(first)
	require.NoError(t, err)
	require.NoError(t, second.Delete(graph.NewTriple("a", "p", "1")))
	require.NoError(t, second.Add(graph.NewTriple("c", "p", "3")))

	assert.Equal(t, 2, second.Size())
	assert.True(t, second.Contains(graph.NewTriple("b", "p", "2")))
	assert.False(t, second.Contains(graph.NewTriple("a", "p", "1")))
}

type badCapsStore struct{ *memstore.Store }

func (b badCapsStore) Capabilities() graph.Capabilities {
	c := b.Store.Capabilities()
	c.HandlesLiteralTyping = true
	return c
}

func TestDeltaGraph_RejectsIncapableBase(t *testing.T) {
	_, err := graph.NewDeltaGraph(badCapsStore{memstore.New()})
	assert.ErrorIs(t, err, graph.ErrBaseCapability)
}
