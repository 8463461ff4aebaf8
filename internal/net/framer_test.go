package net

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramerPromptWholeAndSplit(t *testing.T) {
	now := time.Unix(1000, 0)

	whole := newFramer(DefaultFraming())
	whole.SetLoggedIn(true)
	whole.Append("Foo> ", now)
	msg, reason, ok := whole.TakeComplete()
	require.True(t, ok)
	assert.Equal(t, "Foo> ", msg)
	assert.Equal(t, FlushPrompt, reason)

	split := newFramer(DefaultFraming())
	split.SetLoggedIn(true)
	split.Append("Fo", now)
	_, _, ok = split.TakeComplete()
	require.False(t, ok)
	split.Append("o> ", now.Add(10*time.Millisecond))
	msg, reason, ok = split.TakeComplete()
	require.True(t, ok)
	assert.Equal(t, "Foo> ", msg)
	assert.Equal(t, FlushPrompt, reason)
	assert.Empty(t, split.Buffer())
}

func TestFramerPreLoginPrompts(t *testing.T) {
	now := time.Unix(1000, 0)
	f := newFramer(DefaultFraming())

	f.Append("Enter your name: ", now)
	msg, _, ok := f.TakeComplete()
	require.True(t, ok)
	assert.Equal(t, "Enter your name: ", msg)

	f.Append("Password:\n", now)
	_, _, ok = f.TakeComplete()
	assert.True(t, ok)

	// "> " only counts once logged in
	f.Append("HP:10> ", now)
	_, _, ok = f.TakeComplete()
	assert.False(t, ok)
}

func TestFramerTimeouts(t *testing.T) {
	start := time.Unix(1000, 0)
	f := newFramer(DefaultFraming())

	f.Append("banner text", start)
	_, ok := f.TakeExpired(start.Add(49 * time.Millisecond))
	assert.False(t, ok)
	msg, ok := f.TakeExpired(start.Add(50 * time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, "banner text", msg)

	f.SetLoggedIn(true)
	f.Append("You see a room", start)
	_, ok = f.TakeExpired(start.Add(999 * time.Millisecond))
	assert.False(t, ok)
	_, ok = f.TakeExpired(start.Add(time.Second))
	assert.True(t, ok)

	_, ok = f.TakeExpired(start.Add(time.Hour))
	assert.False(t, ok, "empty buffer never expires")
}

func TestFramerOverflow(t *testing.T) {
	f := newFramer(FramingConfig{LoggedInTimeout: time.Second, PreLoginTimeout: time.Second, MaxBuffer: 10})
	f.SetLoggedIn(true)
	f.Append(strings.Repeat("x", 11), time.Now())
	msg, reason, ok := f.TakeComplete()
	require.True(t, ok)
	assert.Equal(t, FlushOverflow, reason)
	assert.Len(t, msg, 11)
}
