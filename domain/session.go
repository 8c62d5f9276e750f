package domain

// Role is the classroom role a user signs in with.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// Session is the authenticated identity held by the client and persisted as a single record.
type Session struct {
	ID           string `json:"_id"`
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	Role         Role   `json:"role"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Clone returns an independent copy so callers never share the store's value.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// MergeProfile overlays server-provided profile fields while keeping the locally held tokens.
func (s *Session) MergeProfile(u *User) {
	if s == nil || u == nil {
		return
	}
	if u.ID != "" {
		s.ID = u.ID
	}
	if u.Name != "" {
		s.Name = u.Name
	}
	if u.Email != "" {
		s.Email = u.Email
	}
	if u.Role.Valid() {
		s.Role = u.Role
	}
}

// HasRole reports whether the session role is one of roles. An empty list allows any role.
func (s *Session) HasRole(roles ...Role) bool {
	if s == nil {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if s.Role == r {
			return true
		}
	}
	return false
}
