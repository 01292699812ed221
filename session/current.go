package session

// Current is the session a request belongs to.
type Current struct {
	ID        string
	Record    *Record
	Workspace *Workspace
}

// SignedIn reports whether the session has an authenticated user.
func (c *Current) SignedIn() bool {
	return c != nil && c.Record != nil && c.Record.Email != ""
}

// Email is the signed-in user's email, or "" for visitors.
func (c *Current) Email() string {
	if !c.SignedIn() {
		return ""
	}
	return c.Record.Email
}
