package signing

import (
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestSignURL_NoKeyReturnsInputUnchanged(t *testing.T) {
	s := NewSigner("")
	out, err := s.SignURL("https://media.example.b-cdn.net/recordings/AC1/RE1.mp3", Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.b-cdn.net/recordings/AC1/RE1.mp3", out)
}

func TestSignURL_Deterministic(t *testing.T) {
	s := NewSigner("secret-key", WithClock(fixedClock()))
	opts := Options{ExpiresIn: time.Hour}

	first, err := s.SignURL("https://cdn.example.com/recordings/AC1/RE1.mp3", opts)
	require.NoError(t, err)
	second, err := s.SignURL("https://cdn.example.com/recordings/AC1/RE1.mp3", opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSignURL_AppendsTokenAndExpires(t *testing.T) {
	s := NewSigner("secret-key", WithClock(fixedClock()))
	out, err := s.SignURL("https://cdn.example.com/recordings/AC1/RE1.mp3?foo=bar", Options{ExpiresIn: time.Hour})
	require.NoError(t, err)

	u, err := url.Parse(out)
	require.NoError(t, err)
	q := u.Query()
	assert.NotEmpty(t, q.Get("token"))
	assert.Equal(t, "bar", q.Get("foo"), "existing query params survive")

	wantExpiry := fixedClock()().Add(time.Hour).Unix()
	assert.Equal(t, strconv.FormatInt(wantExpiry, 10), q.Get("expires"))
}

func TestSignURL_IPChangesToken(t *testing.T) {
	s := NewSigner("secret-key", WithClock(fixedClock()))
	open, err := s.SignURL("https://cdn.example.com/recordings/AC1/RE1.mp3", Options{ExpiresIn: time.Hour})
	require.NoError(t, err)
	bound, err := s.SignURL("https://cdn.example.com/recordings/AC1/RE1.mp3", Options{ExpiresIn: time.Hour, IPAddress: "203.0.113.9"})
	require.NoError(t, err)
	assert.NotEqual(t, token(t, open), token(t, bound))
}

func TestSignURL_KeyChangesToken(t *testing.T) {
	a := NewSigner("key-a", WithClock(fixedClock()))
	b := NewSigner("key-b", WithClock(fixedClock()))
	fromA, err := a.SignURL("https://cdn.example.com/recordings/AC1/RE1.mp3", Options{ExpiresIn: time.Hour})
	require.NoError(t, err)
	fromB, err := b.SignURL("https://cdn.example.com/recordings/AC1/RE1.mp3", Options{ExpiresIn: time.Hour})
	require.NoError(t, err)
	assert.NotEqual(t, token(t, fromA), token(t, fromB))
}

func TestSignURL_DefaultExpiry(t *testing.T) {
	s := NewSigner("secret-key", WithClock(fixedClock()))
	out, err := s.SignURL("https://cdn.example.com/recordings/AC1/RE1.mp3", Options{})
	require.NoError(t, err)

	u, err := url.Parse(out)
	require.NoError(t, err)
	wantExpiry := fixedClock()().Add(DefaultExpiry).Unix()
	assert.Equal(t, strconv.FormatInt(wantExpiry, 10), u.Query().Get("expires"))
}

func token(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Query().Get("token")
}
