// Package bridge – access.go maps senders to access levels.
//
// Levels are ordered visitor < collaborator < owner:
//   - owner:        the configured owner, always admitted
//   - collaborator: a number on the allow-list
//   - visitor:      anyone else
//
// Identities are compared as bare digits, so "+1 555 123 4567",
// "15551234567" and "15551234567@s.whatsapp.net" are the same sender.
package bridge

import (
	"sort"
	"strings"
)

// AccessLevel is the permission tier of a sender.
type AccessLevel int

const (
	AccessVisitor AccessLevel = iota
	AccessCollaborator
	AccessOwner
)

func (l AccessLevel) String() string {
	switch l {
	case AccessOwner:
		return "owner"
	case AccessCollaborator:
		return "collaborator"
	default:
		return "visitor"
	}
}

// Allows reports whether a sender at level l may use something that
// requires level min.
func (l AccessLevel) Allows(min AccessLevel) bool { return l >= min }

// AccessResolver resolves sender identities against the owner and the
// allow-list. It is immutable after construction.
type AccessResolver struct {
	owner   string
	allowed map[string]struct{}
}

// NewAccessResolver builds a resolver. Entries without digits are ignored.
func NewAccessResolver(owner string, allowList []string) *AccessResolver {
	r := &AccessResolver{
		owner:   normalizeID(owner),
		allowed: make(map[string]struct{}, len(allowList)),
	}
	for _, n := range allowList {
		if id := normalizeID(n); id != "" {
			r.allowed[id] = struct{}{}
		}
	}
	return r
}

// Resolve returns the sender's level.
func (r *AccessResolver) Resolve(senderID string) AccessLevel {
	id := normalizeID(senderID)
	if id == "" {
		return AccessVisitor
	}
	if id == r.owner {
		return AccessOwner
	}
	if _, ok := r.allowed[id]; ok {
		return AccessCollaborator
	}
	return AccessVisitor
}

// Open reports whether the allow-list is empty, which lets every sender
// chat with the assistant.
func (r *AccessResolver) Open() bool { return len(r.allowed) == 0 }

// Admits reports whether a sender at level may interact at all.
func (r *AccessResolver) Admits(level AccessLevel) bool {
	return r.Open() || level > AccessVisitor
}

// AllowList returns the normalized allow-list, sorted.
func (r *AccessResolver) AllowList() []string {
	out := make([]string, 0, len(r.allowed))
	for id := range r.allowed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// normalizeID reduces a phone number or JID to its digits. The server part
// and any device suffix (":3") of a JID are dropped.
func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	if at := strings.IndexByte(id, '@'); at >= 0 {
		id = id[:at]
	}
	if colon := strings.IndexByte(id, ':'); colon >= 0 {
		id = id[:colon]
	}
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, id)
}
