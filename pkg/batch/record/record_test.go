package record_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/autobatch/pkg/batch/record"
)

func TestRecord_PreservesInsertionOrder(t *testing.T) {
	r := record.New()
	r.Set("zeta", 1)
	r.Set("alpha", 2)
	r.Set("mid", 3)
	r.Set("zeta", 4)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, r.Fields())
	v, ok := r.Get("zeta")
	assert.True(t, ok)
	assert.Equal(t, 4, v)
	assert.Equal(t, "{zeta=4, alpha=2, mid=3}", r.String())
}

func TestRecord_MissingField(t *testing.T) {
	r := record.FromPairs([]string{"foo", "bar"}, []any{"1"})

	v, ok := r.Get("bar")
	assert.False(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, "", r.GetString("bar"))
	assert.Equal(t, []any{"1", nil}, r.Values([]string{"foo", "bar"}))
	assert.Equal(t, 1, r.Len())
}

func TestRecord_CloneDoesNotShareFields(t *testing.T) {
	r := record.FromPairs([]string{"a"}, []any{1})
	c := r.Clone()
	c.Set("b", 2)

	assert.False(t, r.Has("b"))
	assert.True(t, c.Has("a"))
	assert.Equal(t, "1", c.GetString("a"))
}

func TestRecord_NilSafeAccessors(t *testing.T) {
	var r *record.Record
	_, ok := r.Get("x")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Fields())
}
