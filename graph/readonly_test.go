package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nornicdb/txgraph/graph"
)

func TestReadOnlyView_DeniesMutation(t *testing.T) {
	base := baseWith(graph.NewTriple("a", "p", "1"))
	view := graph.NewReadOnlyView(base)

	assert.ErrorIs(t, view.Add(graph.NewTriple("x", "y", "z")), graph.ErrReadOnly)
	assert.ErrorIs(t, view.Delete(graph.NewTriple("a", "p", "1")), graph.ErrReadOnly)

	// The underlying graph is unaffected by the rejected write attempts.
	assert.True(t, view.Contains(graph.NewTriple("a", "p", "1")))
	assert.Equal(t, 1, view.Size())
}

func TestReadOnlyView_ForcesCapabilitiesFalse(t *testing.T) {
	base := baseWith()
	view := graph.NewReadOnlyView(base)

	caps := view.Capabilities()
	assert.False(t, caps.AddAllowed)
	assert.False(t, caps.DeleteAllowed)
}
