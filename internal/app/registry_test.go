package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebhookRegistry(t *testing.T) {
	r := NewWebhookRegistry()
	ctrl := &LineController{}

	assert.Nil(t, r.Resolve("nope"))

	r.Register("tok-a", ctrl)
	assert.Same(t, ctrl, r.Resolve("tok-a"))
	assert.Nil(t, r.Resolve("tok-b"), "other tokens stay unresolved")

	r.Unregister("tok-a")
	assert.Nil(t, r.Resolve("tok-a"))

	r.Unregister("tok-a") // repeat unregister is a no-op
}

func TestWebhookRegistryReplace(t *testing.T) {
	r := NewWebhookRegistry()
	first := &LineController{}
	second := &LineController{}

	r.Register("tok", first)
	r.Register("tok", second)
	assert.Same(t, second, r.Resolve("tok"))
}
