package mediasoup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSctpStreamIdPoolAcquireIsLowestFirst(t *testing.T) {
	p := newSctpStreamIdPool(4)

	ids := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		id, err := p.Acquire()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, ids)
}

func TestSctpStreamIdPoolExhaustionReturnsTypeError(t *testing.T) {
	p := newSctpStreamIdPool(2)

	_, err := p.Acquire()
	require.NoError(t, err)
	_, err = p.Acquire()
	require.NoError(t, err)

	_, err = p.Acquire()
	require.Error(t, err)
	var typeErr *TypeError
	assert.ErrorAs(t, err, &typeErr)
}

func TestSctpStreamIdPoolReleaseAllowsReuse(t *testing.T) {
	p := newSctpStreamIdPool(2)

	first, err := p.Acquire()
	require.NoError(t, err)
	_, err = p.Acquire()
	require.NoError(t, err)

	p.Release(first)

	reused, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, first, reused)
}

func TestSctpStreamIdPoolReleaseOutOfRangeIsNoop(t *testing.T) {
	p := newSctpStreamIdPool(1)
	assert.NotPanics(t, func() {
		p.Release(-1)
		p.Release(5)
	})

	id, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 0, id)
}
