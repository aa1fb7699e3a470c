package gstorage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidLocator(t *testing.T) {
	assert.True(t, ValidLocator("https://storage.googleapis.com/bucket/vault/1/a.jpg"))

	// Placeholder values & malformed strings must never reach the API
	assert.False(t, ValidLocator(""))
	assert.False(t, ValidLocator("Video Recording Started"))
	assert.False(t, ValidLocator("http://storage.googleapis.com/bucket/key"))
	assert.False(t, ValidLocator("gs://bucket/key"))
}

func TestKeyFromLocator(t *testing.T) {
	gs := &GStorage{bucket: "sheguard-prod"}

	key, err := gs.KeyFromLocator("https://storage.googleapis.com/sheguard-prod/vault/1/abc/photos/x.jpg")
	assert.Nil(t, err)
	assert.Equal(t, "vault/1/abc/photos/x.jpg", key)

	_, err = gs.KeyFromLocator("not a url")
	assert.NotNil(t, err)

	_, err = gs.KeyFromLocator("https://storage.googleapis.com/some-other-bucket/key")
	assert.NotNil(t, err)
}

func TestLocatorRoundTrip(t *testing.T) {
	gs := &GStorage{bucket: "sheguard-prod"}

	locator := gs.Locator("vault/1/abc/audios/note.m4a")
	assert.True(t, ValidLocator(locator))

	key, err := gs.KeyFromLocator(locator)
	assert.Nil(t, err)
	assert.Equal(t, "vault/1/abc/audios/note.m4a", key)
}
