package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCache(t *testing.T) {
	c := NewCache()
	s := loadSchema(t, "7.2")

	_, ok := c.ByID(1)
	assert.False(t, ok)

	c.Add(Entry{ID: 1, Schema: s})
	got, ok := c.ByID(1)
	assert.True(t, ok)
	assert.Same(t, s, got)

	_, ok = c.ByVersion("", 0)
	assert.False(t, ok)

	e := Entry{ID: 1, Subject: "alerts-value", Version: 3, Schema: s}
	c.Add(e)
	cached, ok := c.ByVersion("alerts-value", 3)
	assert.True(t, ok)
	assert.Equal(t, e, cached)
	assert.Equal(t, 1, c.Len())
}
