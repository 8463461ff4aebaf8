package net

import "fmt"

// SessionState represents the session's current protocol phase.
type SessionState int32

const (
	StatePreLogin     SessionState = iota // connected, login automaton running
	StateLoggedIn                         // game prompt framing
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StatePreLogin:
		return "PreLogin"
	case StateLoggedIn:
		return "LoggedIn"
	case StateDisconnected:
		return "Disconnected"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}
