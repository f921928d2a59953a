package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyIsDeterministic(t *testing.T) {
	c := &QueryCache{}

	first := c.Key("primary", "appdb", "SELECT * FROM users LIMIT 10", 10)
	second := c.Key("primary", "appdb", "SELECT * FROM users LIMIT 10", 10)

	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, keyPrefix))
}

func TestKeyVariesByComponent(t *testing.T) {
	c := &QueryCache{}
	base := c.Key("primary", "appdb", "SELECT 1", 10)

	assert.NotEqual(t, base, c.Key("replica", "appdb", "SELECT 1", 10))
	assert.NotEqual(t, base, c.Key("primary", "reporting", "SELECT 1", 10))
	assert.NotEqual(t, base, c.Key("primary", "appdb", "SELECT 2", 10))
	assert.NotEqual(t, base, c.Key("primary", "appdb", "SELECT 1", 20))
}
