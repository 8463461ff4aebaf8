package login

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordSender struct {
	sent []string
	err  error
}

func (r *recordSender) Send(cmd string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, cmd)
	return nil
}

type memStore struct {
	user, pass string
	calls      int
}

func (m *memStore) SaveCredentials(user, pass string) error {
	m.user, m.pass = user, pass
	m.calls++
	return nil
}

func TestStoredCredentials(t *testing.T) {
	s := &recordSender{}
	store := &memStore{}
	var successes int
	a := New("gandalf", "mellon", s, store, Callbacks{OnSuccess: func() { successes++ }}, zap.NewNop())

	assert.False(t, a.Observe("Welcome to Nightfall\nThis is an LPmud.\nEnter your name: "))
	assert.Equal(t, AwaitingPassword, a.Phase())

	assert.False(t, a.Observe("Password: "))
	assert.Equal(t, AwaitingConfirmation, a.Phase())

	assert.False(t, a.Observe("Last login from somewhere"))
	assert.True(t, a.Observe("Reincarnating...\n"))
	assert.Equal(t, LoggedIn, a.Phase())

	assert.Equal(t, []string{"gandalf", "mellon"}, s.sent)
	assert.Equal(t, 1, successes)
	assert.Zero(t, store.calls, "stored credentials are not written back")

	// Forward only: further output changes nothing.
	assert.True(t, a.Observe("Enter your name: "))
	assert.Len(t, s.sent, 2)
}

func TestManualEntryPersists(t *testing.T) {
	s := &recordSender{}
	store := &memStore{}
	var prompts []string
	a := New("", "", s, store, Callbacks{OnPrompt: func(f string) { prompts = append(prompts, f) }}, zap.NewNop())

	require.Error(t, a.SubmitUsername("early"), "no prompt seen yet")

	a.Observe("login: ")
	assert.Equal(t, AwaitingUsername, a.Phase())
	require.NoError(t, a.SubmitUsername("frodo"))
	assert.Equal(t, AwaitingPassword, a.Phase())

	a.Observe("PASSWORD: ")
	a.Observe("PASSWORD: ") // cumulative buffer is observed again on every append
	assert.Equal(t, []string{"username", "password"}, prompts)
	assert.Equal(t, AwaitingPassword, a.Phase())

	require.NoError(t, a.SubmitPassword("ring"))
	assert.Equal(t, AwaitingConfirmation, a.Phase())
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, "frodo", store.user)
	assert.Equal(t, "ring", store.pass)

	assert.True(t, a.Observe("There are two obvious exits: north and south."))
	assert.Equal(t, []string{"frodo", "ring"}, s.sent)
}

func TestStoredUserManualPassword(t *testing.T) {
	s := &recordSender{}
	store := &memStore{}
	a := New("sam", "", s, store, Callbacks{}, zap.NewNop())

	a.Observe("Gamedriver 3.2\n")
	a.Observe("Password: ")
	require.NoError(t, a.SubmitPassword("potatoes"))
	assert.Equal(t, "sam", store.user)
	assert.Equal(t, "potatoes", store.pass)
	assert.True(t, a.Observe("HP: 100  SP: 40"))
}

func TestSubmitSendFailureKeepsPhase(t *testing.T) {
	s := &recordSender{}
	a := New("", "", s, nil, Callbacks{}, zap.NewNop())
	a.Observe("Username: ")

	s.err = errors.New("broken pipe")
	require.Error(t, a.SubmitUsername("pippin"))
	assert.Equal(t, AwaitingUsername, a.Phase())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "AwaitingConfirmation", AwaitingConfirmation.String())
	assert.Equal(t, "Unknown(9)", Phase(9).String())
}
