package entity

// Actor is the authenticated principal on whose behalf a command runs.
// Callers resolve it once at the edge and pass it explicitly.
type Actor struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles,omitempty"`
}

// IsAuthenticated reports whether a principal is present
func (a Actor) IsAuthenticated() bool {
	return a.UserID != ""
}

// HasRole reports whether the actor holds the given role
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
