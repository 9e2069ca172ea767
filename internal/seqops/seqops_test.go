package seqops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTake(t *testing.T) {
	src := []int64{3, 1, 2}

	assert.Equal(t, []int64{3, 1}, Take(src, 2))
	assert.Equal(t, []int64{3, 1, 2}, Take(src, 10))
	assert.Empty(t, Take(src, 0))
	assert.Empty(t, Take([]int64{}, 3))
}

func TestTakeDoesNotAlias(t *testing.T) {
	src := []string{"a", "b"}
	out := Take(src, 1)
	out[0] = "z"
	assert.Equal(t, "a", src[0])
}

func TestSkip(t *testing.T) {
	src := []int64{3, 1, 2}

	assert.Equal(t, []int64{1, 2}, Skip(src, 1))
	assert.Equal(t, []int64{3, 1, 2}, Skip(src, 0))
	assert.Empty(t, Skip(src, 3))
	assert.Empty(t, Skip(src, 5))
}

func TestReverse(t *testing.T) {
	src := []int64{3, 1, 2}

	assert.Equal(t, []int64{2, 1, 3}, Reverse(src))
	assert.Equal(t, src, Reverse(Reverse(src)))
	assert.Equal(t, []int64{3, 1, 2}, src, "input untouched")
	assert.Empty(t, Reverse([]int64{}))
	assert.NotNil(t, Reverse[int64](nil), "empty result is a slice, not nil")

	out := Reverse(src)
	out[0] = 99
	assert.Equal(t, []int64{3, 1, 2}, src, "result does not alias input")
}

func TestAnyAndCount(t *testing.T) {
	assert.True(t, Any([]bool{false}))
	assert.False(t, Any([]bool{}))
	assert.Equal(t, int64(3), Count([]string{"a", "b", "c"}))
	assert.Equal(t, int64(0), Count[string](nil))
}

func TestFirst(t *testing.T) {
	v, err := First([]int64{3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	_, err = First([]int64{})
	assert.ErrorIs(t, err, ErrNoElements)
}

func TestFirstOrDefault(t *testing.T) {
	assert.Equal(t, "a", FirstOrDefault([]string{"a", "b"}, "zero"))
	assert.Equal(t, "zero", FirstOrDefault([]string{}, "zero"))
}

func TestSingle(t *testing.T) {
	v, err := Single([]int64{7})
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	_, err = Single([]int64{})
	assert.ErrorIs(t, err, ErrNoElements)

	_, err = Single([]int64{1, 2})
	assert.ErrorIs(t, err, ErrMoreThanOneElement)
}

func TestSingleOrDefault(t *testing.T) {
	v, err := SingleOrDefault([]int64{7}, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = SingleOrDefault([]int64{}, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v)

	_, err = SingleOrDefault([]int64{1, 2}, -1)
	assert.ErrorIs(t, err, ErrMoreThanOneElement)
}
