package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-unit/types"
)

func collect(it *Iterator) []string {
	var ids []string
	for ; it.Valid(); it.Next() {
		ids = append(ids, it.CurrentID().String())
	}
	return ids
}

func TestIteratorSkipsEmptySuites(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Suite("empty_first")
	require.NoError(t, err)
	a, err := r.Suite("a")
	require.NoError(t, err)
	_, err = r.Suite("empty_middle")
	require.NoError(t, err)
	b, err := r.Suite("b")
	require.NoError(t, err)
	_, err = r.Suite("empty_last")
	require.NoError(t, err)

	require.NoError(t, a.Add("t2", 0, noop))
	require.NoError(t, a.Add("t1", 0, noop))
	require.NoError(t, b.Add("only", types.FlagNoParallel, noop))

	assert.Equal(t, []string{"a/t1", "a/t2", "b/only"}, collect(r.Iterator()))
}

func TestIteratorOnEmptyRegistry(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Suite("nothing_here")
	require.NoError(t, err)

	it := r.Iterator()
	assert.False(t, it.Valid())
	it.Next() // no-op once exhausted
	assert.False(t, it.Valid())
	assert.Panics(t, func() { it.Current() })
}

func TestIteratorExposesTestInfo(t *testing.T) {
	r := newTestRegistry()
	s, err := r.Suite("x")
	require.NoError(t, err)
	require.NoError(t, s.AddDisabled("off", types.FlagNoParallel, nil))

	it := r.Iterator()
	require.True(t, it.Valid())
	tc := it.Current()
	assert.Equal(t, types.FullID{Suite: "x", Test: "off"}, it.CurrentID())
	assert.True(t, tc.Disabled())
	assert.True(t, tc.NoParallel())
	assert.Nil(t, tc.Procedure())
}
