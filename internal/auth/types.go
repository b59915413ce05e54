package auth

// Condominium identifies the property a role assignment is scoped to.
type Condominium struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// RoleAssignment links a role name to an optional condominium scope.
// Order is preserved as the upstream returns it.
type RoleAssignment struct {
	Role        string       `json:"role"`
	Condominium *Condominium `json:"condominium,omitempty"`
}

// User is the authenticated principal as reported by the upstream API.
// It is replaced wholesale on every successful login or session check and
// cleared on logout or a failed check.
type User struct {
	ID        int64            `json:"id"`
	Email     string           `json:"email"`
	FirstName string           `json:"first_name"`
	LastName  string           `json:"last_name"`
	Roles     []RoleAssignment `json:"roles"`
}

// RoleNames returns the user's role names in assignment order.
func (u *User) RoleNames() []string {
	if u == nil {
		return nil
	}
	names := make([]string, 0, len(u.Roles))
	for _, a := range u.Roles {
		names = append(names, a.Role)
	}
	return names
}

// HasRole reports whether any assignment carries the given role name.
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, a := range u.Roles {
		if a.Role == role {
			return true
		}
	}
	return false
}
