package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeKey(t *testing.T) {
	assert.Equal(t, "rl:premium:user:42", MakeKey("premium", "user:42"))
	assert.Equal(t, MakeKey("Premium Features", "user:1"), MakeKey("premium-features", "user:1"))
	assert.Equal(t, "rl:default:anonymous", MakeKey("", ""))
	assert.NotEqual(t, MakeKey("premium", "user:1"), MakeKey("general", "user:1"))
}

func TestResolveIdentity(t *testing.T) {
	assert.Equal(t, "user:42", ResolveIdentity("42", "10.0.0.1"))
	assert.Equal(t, "ip:10.0.0.1", ResolveIdentity(" ", "10.0.0.1"))
	assert.Equal(t, AnonymousIdentity, ResolveIdentity("", ""))
}
