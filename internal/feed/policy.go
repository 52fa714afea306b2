package feed

import "crypto/subtle"

// Operation names an action the policy can authorize.
type Operation int

const (
	OpView Operation = iota
	OpCreate
	OpComment
	OpHide
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpView:
		return "view"
	case OpCreate:
		return "create"
	case OpComment:
		return "comment"
	case OpHide:
		return "hide"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Policy decides who may do what. It holds only the admin secret and has
// no side effects.
type Policy struct {
	adminSecret []byte
}

// NewPolicy returns a policy for adminSecret. An empty secret disables
// admin access entirely.
func NewPolicy(adminSecret string) Policy {
	return Policy{adminSecret: []byte(adminSecret)}
}

// IsAdmin compares credential with the admin secret in constant time.
func (p Policy) IsAdmin(credential string) bool {
	if len(p.adminSecret) == 0 || credential == "" {
		return false
	}
	return subtle.ConstantTimeCompare(p.adminSecret, []byte(credential)) == 1
}

// Viewer builds the read identity for a request.
func (p Policy) Viewer(credential, sessionToken string) Viewer {
	return Viewer{Admin: p.IsAdmin(credential), SessionToken: sessionToken}
}

// Authorize reports whether the holder of credential and sessionToken
// may perform op on story. story may be nil for operations that do not
// target one.
func (p Policy) Authorize(op Operation, story *Story, credential, sessionToken string) bool {
	return p.Permits(op, story, p.Viewer(credential, sessionToken))
}

// Permits is Authorize for an already resolved viewer. Every read and
// write path in the service decides through it.
func (p Policy) Permits(op Operation, story *Story, v Viewer) bool {
	switch op {
	case OpCreate:
		return true
	case OpView, OpComment:
		return v.Admin || (story != nil && !story.Hidden)
	case OpHide:
		return v.Admin
	case OpDelete:
		return v.Admin || (story != nil && story.OwnedBy(v.SessionToken))
	default:
		return false
	}
}
