package event

import (
	"github.com/nightfall-go/mapper/internal/position"
	"github.com/nightfall-go/mapper/internal/route"
)

// Message is one framed server message, ANSI codes intact.
type Message struct {
	Text   string `json:"text"`
	Reason string `json:"reason"` // prompt, timeout, overflow
}

// LoginPrompt asks the user for a credential ("username" or "password").
type LoginPrompt struct {
	Field string `json:"field"`
}

type LoggedIn struct{}

// PositionChanged is published when the estimated room changes.
type PositionChanged struct {
	Estimate    position.Estimate `json:"estimate"`
	Name        string            `json:"name"`
	ZoneID      int               `json:"zone_id"`
	ZoneName    string            `json:"zone_name,omitempty"`
	ZoneChanged bool              `json:"zone_changed"`
	Z           int               `json:"z"`
}

type RouteStatus struct {
	route.Status
}

type Disconnected struct {
	Err string `json:"error,omitempty"`
}
