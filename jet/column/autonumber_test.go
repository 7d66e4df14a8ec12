package column

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLongGeneratorIncrements(t *testing.T) {
	g := NewLongGenerator(10)
	v, err := g.Next()
	require.NoError(t, err)
	require.Equal(t, int32(11), v)
	require.Equal(t, int32(11), g.Current())

	v2, err := g.Next()
	require.NoError(t, err)
	require.Equal(t, int32(12), v2)
}

func TestGUIDGeneratorProducesUniqueValues(t *testing.T) {
	g := GUIDGenerator{}
	a, err := g.Next()
	require.NoError(t, err)
	b, err := g.Next()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestComplexGeneratorIncrements(t *testing.T) {
	g := NewComplexGenerator(0)
	v, err := g.Next()
	require.NoError(t, err)
	require.Equal(t, int32(1), v)
	require.Equal(t, AutoNumberComplex, g.Kind())
}

func TestUnsupportedGeneratorErrors(t *testing.T) {
	g := UnsupportedGenerator{}
	_, err := g.Next()
	require.Error(t, err)
}
