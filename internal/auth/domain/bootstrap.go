package domain

// RightsSeed describes the roles and permissions created on first start.
type RightsSeed struct {
	Permissions []string         `yaml:"permissions"`
	Roles       []RoleDefinition `yaml:"roles"`
	Users       []UserGrant      `yaml:"users"`
}

type RoleDefinition struct {
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

// UserGrant assigns roles to an identity-provider subject.
type UserGrant struct {
	UserID string   `yaml:"user_id"`
	Roles  []string `yaml:"roles"`
}
