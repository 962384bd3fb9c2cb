package autoconfigure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("b", 1))
	require.NoError(t, reg.Register("a", "x"))

	assert.Error(t, reg.Register("a", "y"))
	assert.Error(t, reg.Register("", 1))
	assert.Error(t, reg.Register("c", nil))

	v, ok := reg.Lookup("a")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	_, ok = reg.Lookup("missing")
	assert.False(t, ok)
	assert.True(t, reg.Has("b"))
	assert.Equal(t, []string{"a", "b"}, reg.Names())
}

func TestRegistry_RegisterAllIsAtomic(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("existing", 1))

	err := reg.registerAll(map[string]any{"new": 2, "existing": 3})
	assert.Error(t, err)
	assert.False(t, reg.Has("new"))
}
