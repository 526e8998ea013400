package model

import (
	"time"
)

// Presence is a user's availability status.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
	PresenceBusy    Presence = "busy"
	PresenceAway    Presence = "away"
)

// Valid reports whether p is one of the known statuses.
func (p Presence) Valid() bool {
	switch p {
	case PresenceOnline, PresenceOffline, PresenceBusy, PresenceAway:
		return true
	}
	return false
}

// User is a person known to the identity registry.
type User struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Avatar string   `json:"avatar,omitempty"`
	Status Presence `json:"status"`
	Online bool     `json:"online"`
	// LastSeen is stamped only on a transition into offline.
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// UpsertUserRequest registers or updates the caller's profile.
type UpsertUserRequest struct {
	Name   string `json:"name" validate:"required,max=128"`
	Avatar string `json:"avatar,omitempty" validate:"omitempty,max=2048"`
}

// SetPresenceRequest changes the caller's presence status.
type SetPresenceRequest struct {
	Status Presence `json:"status" validate:"required,oneof=online offline busy away"`
}

// ListUsersResponse is the response for the user directory.
type ListUsersResponse struct {
	Users []User `json:"users"`
}
