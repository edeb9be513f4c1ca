package model

import "time"

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// Member is a user's membership in one project joined with the user's
// resolved identity.
type Member struct {
	ProjectID   string   `firestore:"projectid,omitempty" json:"projectId"`
	UserID      string   `firestore:"userid,omitempty" json:"userId"`
	Role        Role     `firestore:"role,omitempty" json:"role"`
	Active      bool     `firestore:"active" json:"active"`
	HourlyRate  *float64 `firestore:"hourlyrate" json:"hourlyRate"` // nil = configured fallback
	CanTrack    bool     `firestore:"cantrack" json:"canTrack"`
	CanViewCost bool     `firestore:"canviewcost" json:"canViewCost"`
	Identity    Identity `firestore:"-" json:"identity"`
}

func (m Member) Clone() Member {
	out := m
	if m.HourlyRate != nil {
		r := *m.HourlyRate
		out.HourlyRate = &r
	}
	return out
}

// Rate returns the member's hourly rate or fallback when unset.
func (m Member) Rate(fallback float64) float64 {
	if m.HourlyRate == nil {
		return fallback
	}
	return *m.HourlyRate
}

// Identity is the resolved display identity of a user. Name and avatar come
// from the profile source, email from the user directory.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Avatar      string `json:"avatar"`
}

// Label is the name shown for the user, degrading to a placeholder when no
// identity record was found.
func (i Identity) Label() string {
	switch {
	case i.DisplayName != "":
		return i.DisplayName
	case i.Email != "":
		return i.Email
	}
	id := i.UserID
	if len(id) > 8 {
		id = id[:8]
	}
	if id == "" {
		return "Unknown member"
	}
	return "Member " + id
}

// User is a document of the Users directory collection.
type User struct {
	UserID    string    `firestore:"userid,omitempty"`
	Name      string    `firestore:"name,omitempty"`
	Email     string    `firestore:"email,omitempty"`
	Profile   string    `firestore:"profile,omitempty"`
	CreatedAt time.Time `firestore:"createdat,omitempty"`
}

// Profile is a document of the Profiles collection.
type Profile struct {
	UserID      string `firestore:"userid,omitempty"`
	DisplayName string `firestore:"displayname,omitempty"`
	Avatar      string `firestore:"avatar,omitempty"`
}
