package model

import "time"

type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionSync  Permission = "sync"
)

var DefaultPermissions = []Permission{PermissionRead, PermissionWrite, PermissionSync}

// Invite is stored on the backend under a hash of its code; the code itself
// never leaves the sharing node except through the collaborator.
type Invite struct {
	Code          string       `json:"-"`
	ProjectID     string       `json:"projectId"`
	ProjectName   string       `json:"projectName"`
	Owner         string       `json:"owner"`
	Collaborators []string     `json:"collaborators"`
	Permissions   []Permission `json:"permissions"`
	SealedKey     string       `json:"sealedKey,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	ExpiresAt     time.Time    `json:"expiresAt"`
}

func (i *Invite) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

type ShareResult struct {
	ProjectID   string       `json:"projectId"`
	InviteCode  string       `json:"inviteCode"`
	SharedWith  []string     `json:"sharedWith"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	Permissions []Permission `json:"permissions"`
}

type ProjectJoinResult struct {
	ProjectID   string       `json:"projectId"`
	ProjectName string       `json:"projectName"`
	Role        string       `json:"role"`
	Permissions []Permission `json:"permissions"`
	JoinedAt    time.Time    `json:"joinedAt"`
}

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

type CollaborationSession struct {
	ID           string        `json:"id"`
	ProjectID    string        `json:"projectId"`
	InviteCode   string        `json:"inviteCode,omitempty"`
	Participants []string      `json:"participants"`
	ActiveFiles  []string      `json:"activeFiles"`
	LastActivity time.Time     `json:"lastActivity"`
	Status       SessionStatus `json:"status"`
}
