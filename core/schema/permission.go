package schema

import (
	"slices"
	"strings"
)

// Action is a canonical resource action.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
)

// WildcardGroup is the group name that matches every member.
const WildcardGroup = "*"

// Actions returns the canonical actions.
func Actions() []Action {
	return []Action{ActionRead, ActionCreate, ActionUpdate, ActionRemove}
}

// actionAliases maps accepted spellings to canonical actions.
var actionAliases = map[string]Action{
	"read":   ActionRead,
	"get":    ActionRead,
	"create": ActionCreate,
	"insert": ActionCreate,
	"add":    ActionCreate,
	"update": ActionUpdate,
	"remove": ActionRemove,
	"delete": ActionRemove,
}

// ParseAction resolves an action name or alias. Case-insensitive.
func ParseAction(name string) (Action, bool) {
	a, ok := actionAliases[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

// NormalizeActions resolves aliases, drops unknown names and removes
// duplicates while keeping first-seen order.
func NormalizeActions(names ...string) []Action {
	out := make([]Action, 0, len(names))
	for _, name := range names {
		a, ok := ParseAction(name)
		if !ok || slices.Contains(out, a) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Member is anything that belongs to groups (typically a principal).
type Member interface {
	MemberOf() []string
}

// Privileged is implemented by members that bypass permission tables.
type Privileged interface {
	Privileged() bool
}

type systemMember struct{}

func (systemMember) MemberOf() []string { return nil }
func (systemMember) Privileged() bool   { return true }

// System is the internal member used by the engine itself (for example
// the session manager reading credentials). It is never denied.
var System Member = systemMember{}

// IsPrivileged reports whether m bypasses permission checks.
func IsPrivileged(m Member) bool {
	p, ok := m.(Privileged)
	return ok && p.Privileged()
}

// Allow grants actions to a group. Granting an already granted action
// is a no-op.
func (s *Schema) Allow(group string, actions ...string) *Schema {
	s.mu.Lock()
	defer s.mu.Unlock()

	rights := s.permissions[group]
	for _, a := range NormalizeActions(actions...) {
		if !slices.Contains(rights, a) {
			rights = append(rights, a)
		}
	}
	s.permissions[group] = rights
	return s
}

// Deny revokes actions from a group. Revoking an absent action is a no-op.
func (s *Schema) Deny(group string, actions ...string) *Schema {
	s.mu.Lock()
	defer s.mu.Unlock()

	rights := s.permissions[group]
	for _, a := range NormalizeActions(actions...) {
		rights = slices.DeleteFunc(rights, func(r Action) bool { return r == a })
	}
	s.permissions[group] = rights
	return s
}

// GroupIsAllowed reports whether group may perform action. A grant to the
// wildcard group applies to every group.
func (s *Schema) GroupIsAllowed(group string, action Action) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groupIsAllowed(group, action)
}

func (s *Schema) groupIsAllowed(group string, action Action) bool {
	if group != WildcardGroup && slices.Contains(s.permissions[WildcardGroup], action) {
		return true
	}
	return slices.Contains(s.permissions[group], action)
}

// UserIsAllowed reports whether any of the member's groups may perform
// action. A nil member is anonymous: only wildcard grants apply.
func (s *Schema) UserIsAllowed(m Member, action Action) bool {
	if m != nil && IsPrivileged(m) {
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.groupIsAllowed(WildcardGroup, action) {
		return true
	}
	if m == nil {
		return false
	}
	for _, g := range m.MemberOf() {
		if s.groupIsAllowed(g, action) {
			return true
		}
	}
	return false
}

// Permissions returns a copy of the permission table.
func (s *Schema) Permissions() map[string][]Action {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]Action, len(s.permissions))
	for g, rights := range s.permissions {
		out[g] = slices.Clone(rights)
	}
	return out
}
