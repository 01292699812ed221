package cache

import "strings"

// Key identifies a cached collection: a resource name plus an optional scope
// such as the signed-in user's email.
type Key struct {
	Resource string
	Scope    string
}

func NewKey(resource string, scope ...string) Key {
	return Key{Resource: resource, Scope: strings.Join(scope, "/")}
}

func (k Key) String() string {
	if k.Scope == "" {
		return k.Resource
	}
	return k.Resource + "/" + k.Scope
}

// Matches reports whether k is selected by pattern. A pattern without a scope
// selects every scope of its resource.
func (k Key) Matches(pattern Key) bool {
	if k.Resource != pattern.Resource {
		return false
	}
	return pattern.Scope == "" || k.Scope == pattern.Scope
}

// Resource names shared by the views and the mutations that invalidate them.
const (
	AllIssues      = "allIssues"
	Issue          = "issue"
	MyIssues       = "myIssues"
	AssignedIssues = "assignedIssues"
	MyPayments     = "myPayments"
	AllPayments    = "allPayments"
	AllUsers       = "allUsers"
	Profile        = "profile"
	AllStaff       = "allStaff"
)
