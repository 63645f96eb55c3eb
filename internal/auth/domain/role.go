package domain

import "time"

type Role struct {
	ID        string // UUID
	Name      string
	CreatedAt time.Time
}

type Permission struct {
	ID        string // UUID
	Name      string
	CreatedAt time.Time
}

// Rights are the role and permission names resolved for a user at token
// issuance time. Both lists are deduplicated and may be empty.
type Rights struct {
	Roles       []string
	Permissions []string
}
