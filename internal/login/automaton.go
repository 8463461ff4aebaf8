// Package login drives the game server's login dialogue: it answers the
// name and password prompts from stored credentials or asks the user, and
// detects the first in-game output.
package login

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Phase is the login progress. Phases only move forward.
type Phase int

const (
	AwaitingPrompt Phase = iota
	AwaitingUsername
	AwaitingPassword
	AwaitingConfirmation
	LoggedIn
)

func (p Phase) String() string {
	switch p {
	case AwaitingPrompt:
		return "AwaitingPrompt"
	case AwaitingUsername:
		return "AwaitingUsername"
	case AwaitingPassword:
		return "AwaitingPassword"
	case AwaitingConfirmation:
		return "AwaitingConfirmation"
	case LoggedIn:
		return "LoggedIn"
	default:
		return fmt.Sprintf("Unknown(%d)", int(p))
	}
}

// Markers are matched case-insensitively as substrings.
var (
	bannerMarkers   = []string{"gamedriver", "lpmud", "enter your name", "login:", "name:", "username:"}
	passwordMarkers = []string{"password:"}
	successMarkers  = []string{"reincarnating", "hp:", "mana:", "exits:", "obvious exits"}
)

// Sender writes a command line to the server.
type Sender interface {
	Send(cmd string) error
}

// CredentialStore persists credentials the user typed in.
type CredentialStore interface {
	SaveCredentials(user, pass string) error
}

// Callbacks are invoked outside the automaton's lock. Either may be nil.
type Callbacks struct {
	OnPrompt  func(field string) // "username" or "password"
	OnSuccess func()
}

// Automaton is safe for concurrent use: Observe runs on the session's read
// goroutine while Submit* come from the user.
type Automaton struct {
	mu         sync.Mutex
	phase      Phase
	user, pass string
	manual     bool // at least one credential was typed by the user
	saved      bool
	asked      bool // password prompt already forwarded to the user

	sender Sender
	store  CredentialStore
	cb     Callbacks
	log    *zap.Logger
}

// New creates an automaton. Empty user or pass means "ask when prompted".
// store may be nil.
func New(user, pass string, sender Sender, store CredentialStore, cb Callbacks, log *zap.Logger) *Automaton {
	return &Automaton{
		user:   user,
		pass:   pass,
		sender: sender,
		store:  store,
		cb:     cb,
		log:    log,
	}
}

func (a *Automaton) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// Observe inspects the cumulative unflushed buffer and reports whether the
// login has completed.
func (a *Automaton) Observe(buffer string) bool {
	lower := strings.ToLower(buffer)

	var (
		send     []string
		prompt   string
		success  bool
		loggedIn bool
	)

	a.mu.Lock()
	prev := a.phase
	switch a.phase {
	case AwaitingPrompt:
		if containsAny(lower, bannerMarkers) {
			if a.user != "" {
				send = append(send, a.user)
				a.phase = AwaitingPassword
			} else {
				a.phase = AwaitingUsername
				prompt = "username"
			}
		}
	case AwaitingPassword:
		if containsAny(lower, successMarkers) {
			a.phase = LoggedIn
			success = true
		} else if !a.asked && containsAny(lower, passwordMarkers) {
			if a.pass != "" {
				send = append(send, a.pass)
				a.phase = AwaitingConfirmation
			} else {
				a.asked = true
				prompt = "password"
			}
		}
	case AwaitingConfirmation:
		if containsAny(lower, successMarkers) {
			a.phase = LoggedIn
			success = true
		}
	}
	phase := a.phase
	loggedIn = phase == LoggedIn
	a.mu.Unlock()

	if phase != prev {
		a.log.Debug("登入階段變更", zap.Stringer("from", prev), zap.Stringer("to", phase))
	}
	for _, cmd := range send {
		if err := a.sender.Send(cmd); err != nil {
			a.log.Warn("登入資料發送失敗", zap.Error(err))
		}
	}
	if prompt != "" && a.cb.OnPrompt != nil {
		a.cb.OnPrompt(prompt)
	}
	if success {
		a.log.Info("登入成功")
		if a.cb.OnSuccess != nil {
			a.cb.OnSuccess()
		}
	}
	return loggedIn
}

// SubmitUsername sends a username typed by the user.
func (a *Automaton) SubmitUsername(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != AwaitingUsername {
		return fmt.Errorf("username not expected in phase %s", a.phase)
	}
	if err := a.sender.Send(name); err != nil {
		return fmt.Errorf("send username: %w", err)
	}
	a.user = name
	a.manual = true
	a.phase = AwaitingPassword
	a.persistLocked()
	return nil
}

// SubmitPassword sends a password typed by the user.
func (a *Automaton) SubmitPassword(pass string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != AwaitingPassword {
		return fmt.Errorf("password not expected in phase %s", a.phase)
	}
	if err := a.sender.Send(pass); err != nil {
		return fmt.Errorf("send password: %w", err)
	}
	a.pass = pass
	a.manual = true
	a.phase = AwaitingConfirmation
	a.persistLocked()
	return nil
}

// persistLocked writes the credential pair through once both halves are
// known and one of them came from the user.
func (a *Automaton) persistLocked() {
	if a.saved || !a.manual || a.user == "" || a.pass == "" || a.store == nil {
		return
	}
	if err := a.store.SaveCredentials(a.user, a.pass); err != nil {
		a.log.Warn("帳號資料儲存失敗", zap.Error(err))
		return
	}
	a.saved = true
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
