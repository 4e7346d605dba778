// Package users implements principals and the session manager on top of
// the internal _users resource.
package users

import (
	"slices"
	"strings"

	"github.com/artpar/pocket/core/schema"
	"github.com/artpar/pocket/core/storage"
)

// Well-known groups.
const (
	GroupAdmins = "admins"
	GroupUsers  = "users"
)

// Principal is a user as seen by permission checks.
type Principal struct {
	// ID is empty until the principal is saved.
	ID       string
	Username string
	Hash     string

	Groups []string

	// Permissions grants actions per resource name, or "*" for every
	// resource, on top of what the groups allow.
	Permissions map[string][]string
}

// MemberOf returns the principal's groups. Safe on a nil principal.
func (p *Principal) MemberOf() []string {
	if p == nil {
		return nil
	}
	return p.Groups
}

// InGroup reports whether the principal belongs to group.
func (p *Principal) InGroup(group string) bool {
	return slices.Contains(p.MemberOf(), group)
}

// IsAllowed reports whether the principal's own permissions grant action
// on resource, either directly or through "*".
func (p *Principal) IsAllowed(action schema.Action, resource string) bool {
	if p == nil {
		return false
	}
	for _, key := range []string{schema.WildcardGroup, resource} {
		if slices.Contains(schema.NormalizeActions(p.Permissions[key]...), action) {
			return true
		}
	}
	return false
}

// Public returns the fields safe to hand to clients.
func (p *Principal) Public() map[string]any {
	groups := p.Groups
	if groups == nil {
		groups = []string{}
	}
	perms := p.Permissions
	if perms == nil {
		perms = map[string][]string{}
	}
	return map[string]any{
		"id":          p.ID,
		"username":    p.Username,
		"groups":      groups,
		"permissions": perms,
	}
}

// record is the stored form of the principal.
func (p *Principal) record() storage.Record {
	groups := p.Groups
	if groups == nil {
		groups = []string{}
	}
	return storage.Record{
		"username":    p.Username,
		"hash":        p.Hash,
		"groups":      groups,
		"permissions": NormalizePermissions(p.Permissions),
	}
}

// NormalizePermissions lower-cases and resolves aliases of every action,
// dropping unknown ones.
func NormalizePermissions(perms map[string][]string) map[string][]string {
	out := make(map[string][]string, len(perms))
	for resource, actions := range perms {
		normalized := schema.NormalizeActions(actions...)
		list := make([]string, len(normalized))
		for i, a := range normalized {
			list[i] = string(a)
		}
		out[strings.TrimSpace(resource)] = list
	}
	return out
}

// FromRecord rebuilds a principal from a stored _users record.
func FromRecord(rec storage.Record) *Principal {
	if rec == nil {
		return nil
	}

	p := &Principal{
		Groups:      stringsOf(rec["groups"]),
		Permissions: make(map[string][]string),
	}
	p.ID, _ = rec[storage.IDField].(string)
	p.Username, _ = rec["username"].(string)
	p.Hash, _ = rec["hash"].(string)

	switch perms := rec["permissions"].(type) {
	case map[string]any:
		for resource, actions := range perms {
			p.Permissions[resource] = stringsOf(actions)
		}
	case map[string][]string:
		for resource, actions := range perms {
			p.Permissions[resource] = slices.Clone(actions)
		}
	}
	return p
}

func stringsOf(v any) []string {
	switch list := v.(type) {
	case []string:
		return slices.Clone(list)
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{list}
	default:
		return []string{}
	}
}

// Ensure interface compliance.
var _ schema.Member = (*Principal)(nil)
