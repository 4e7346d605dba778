package users

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/artpar/pocket/core/runtime"
	"github.com/artpar/pocket/core/schema"
	"github.com/artpar/pocket/core/storage"
	"github.com/artpar/pocket/ports"
	"github.com/rs/zerolog"
)

// Collection is the resource holding principals.
const Collection = "_users"

// Session and account errors.
var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidGroup       = errors.New("invalid user group")
	ErrNotFound           = errors.New("user not found")
	ErrInvalidUsername    = errors.New("username is required")
)

// Config configures the Manager.
type Config struct {
	// AdminGroups are the groups whose members are administrators.
	// Defaults to [admins].
	AdminGroups []string

	// ValidGroups lists the groups users may be created in when
	// EnforceValidGroups is set. Defaults to [admins users].
	ValidGroups []string

	// EnforceValidGroups rejects unknown groups on Create.
	EnforceValidGroups bool

	// Logger for account events.
	Logger zerolog.Logger
}

// Manager creates, authenticates and restores principals.
type Manager struct {
	resource *runtime.Resource
	hasher   ports.Hasher
	tokens   ports.TokenCodec
	config   Config
	logger   zerolog.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

// Schema returns the _users schema with its hooks: password fields are
// hashed into hash on writes, and hash is stripped from results for
// unprivileged callers. Administrators have every right.
func Schema(hasher ports.Hasher) *schema.Schema {
	s := schema.MustNew(schema.Fields{
		{Name: "username", Field: schema.Of(schema.FieldTypeString).AsRequired().WithIndex(true)},
		{Name: "password", Field: schema.Of(schema.FieldTypePassword)},
		{Name: "groups", Field: schema.ArrayOf(schema.Of(schema.FieldTypeString))},
		{Name: "hash", Field: schema.Of(schema.FieldTypeString)},
		{Name: "userData", Field: schema.Of(schema.FieldTypeObject)},
		{Name: "permissions", Field: schema.MapOf(schema.ArrayOf(schema.Of(schema.FieldTypeString)))},
	})
	s.Allow(GroupAdmins, "read", "create", "update", "remove")

	hashPassword := func(ctx context.Context, data *schema.HookData, hc *schema.HookContext) error {
		if err := hashInto(hasher, data.Payload); err != nil {
			return err
		}
		if set, ok := data.Mutation["$set"].(map[string]any); ok {
			return hashInto(hasher, set)
		}
		return hashInto(hasher, data.Mutation)
	}
	hidden := append(s.SecretFields(), "hash")
	stripSecrets := func(ctx context.Context, data *schema.HookData, hc *schema.HookContext) error {
		if schema.IsPrivileged(hc.Member) {
			return nil
		}
		for _, rec := range data.Records {
			for _, field := range hidden {
				delete(rec, field)
			}
		}
		return nil
	}

	s.Before(runtime.MethodCreate, hashPassword).
		Before(runtime.MethodUpdate, hashPassword).
		After(runtime.MethodRead, stripSecrets).
		After(runtime.MethodCreate, stripSecrets).
		After(runtime.MethodUpdate, stripSecrets)
	return s
}

func hashInto(hasher ports.Hasher, fields map[string]any) error {
	pw, ok := fields["password"]
	if !ok {
		return nil
	}
	delete(fields, "password")

	plain, ok := pw.(string)
	if !ok || plain == "" {
		return nil
	}
	hash, err := hasher.Hash(plain)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	fields["hash"] = string(hash)
	return nil
}

// NewManager registers the _users resource on rt and returns its manager.
func NewManager(rt *runtime.Runtime, hasher ports.Hasher, tokens ports.TokenCodec, config Config) (*Manager, error) {
	if len(config.AdminGroups) == 0 {
		config.AdminGroups = []string{GroupAdmins}
	}
	if len(config.ValidGroups) == 0 {
		config.ValidGroups = []string{GroupAdmins, GroupUsers}
	}

	res, err := rt.Resource(Collection, Schema(hasher))
	if err != nil {
		return nil, err
	}

	return &Manager{
		resource: res,
		hasher:   hasher,
		tokens:   tokens,
		config:   config,
		logger:   config.Logger,
	}, nil
}

// Resource returns the _users resource.
func (m *Manager) Resource() *runtime.Resource {
	return m.resource
}

// HashPassword returns a salted one-way hash of password.
func (m *Manager) HashPassword(password string) (string, error) {
	hash, err := m.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares password against hash in constant time.
func (m *Manager) VerifyPassword(password, hash string) bool {
	return m.hasher.Compare([]byte(hash), password)
}

// Create hashes the password and persists a new principal. Without groups
// the principal joins the users group.
func (m *Manager) Create(ctx context.Context, username, password string, groups []string, permissions map[string][]string) (*Principal, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalidUsername
	}
	if len(groups) == 0 {
		groups = []string{GroupUsers}
	}
	if m.config.EnforceValidGroups {
		for _, g := range groups {
			if !slices.Contains(m.config.ValidGroups, g) {
				return nil, fmt.Errorf("%w: %s", ErrInvalidGroup, g)
			}
		}
	}

	existing, err := m.resource.FindOne(ctx, schema.System, storage.Query{"username": username})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	hash, err := m.HashPassword(password)
	if err != nil {
		return nil, err
	}

	p := &Principal{
		Username:    username,
		Hash:        hash,
		Groups:      slices.Clone(groups),
		Permissions: permissions,
	}
	if err := m.Save(ctx, p); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	m.logger.Info().Str("user_id", p.ID).Str("username", username).Strs("groups", p.Groups).Msg("user created")
	return p, nil
}

// Save persists p: a new principal is created and receives its ID, an
// existing one is merged. Permission actions are normalized first.
func (m *Manager) Save(ctx context.Context, p *Principal) error {
	p.Permissions = NormalizePermissions(p.Permissions)
	rec := p.record()

	if p.ID != "" {
		saved, err := m.resource.Merge(ctx, schema.System, p.ID, rec)
		if err != nil {
			return err
		}
		if saved == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, p.ID)
		}
		return nil
	}

	saved, err := m.resource.Create(ctx, schema.System, rec)
	if err != nil {
		return err
	}
	p.ID, _ = saved[storage.IDField].(string)
	return nil
}

// Authenticate loads the principal and checks its password. Unknown users
// and wrong passwords fail alike with ErrInvalidCredentials.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (*Principal, error) {
	rec, err := m.resource.FindOne(ctx, schema.System, storage.Query{"username": strings.TrimSpace(username)})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// Burn a comparison so unknown users take as long as wrong passwords.
		m.hasher.Compare(m.dummy(), password)
		return nil, ErrInvalidCredentials
	}

	p := FromRecord(rec)
	if !m.VerifyPassword(password, p.Hash) {
		m.logger.Debug().Str("username", p.Username).Msg("password mismatch")
		return nil, ErrInvalidCredentials
	}
	m.upgradeHash(ctx, p, password)
	return p, nil
}

// upgradeHash re-hashes the password of a signed-in principal whose stored
// hash the hasher reports as outdated. Failures are logged; the login
// still succeeds.
func (m *Manager) upgradeHash(ctx context.Context, p *Principal, password string) {
	r, ok := m.hasher.(ports.Rehasher)
	if !ok || !r.NeedsRehash([]byte(p.Hash)) {
		return
	}

	hash, err := m.HashPassword(password)
	if err != nil {
		m.logger.Warn().Err(err).Str("user_id", p.ID).Msg("password rehash failed")
		return
	}
	if _, err := m.resource.Merge(ctx, schema.System, p.ID, storage.Record{"hash": hash}); err != nil {
		m.logger.Warn().Err(err).Str("user_id", p.ID).Msg("password rehash not saved")
		return
	}
	p.Hash = hash
	m.logger.Info().Str("user_id", p.ID).Msg("password hash upgraded")
}

func (m *Manager) dummy() []byte {
	m.dummyOnce.Do(func() {
		m.dummyHash, _ = m.hasher.Hash("pocket-dummy-password")
	})
	return m.dummyHash
}

// IssueToken signs a session token for a saved principal.
func (m *Manager) IssueToken(p *Principal) (string, time.Time, error) {
	if p == nil || p.ID == "" {
		return "", time.Time{}, fmt.Errorf("%w: principal is not saved", ErrUnauthorized)
	}
	return m.tokens.Issue(ports.TokenClaims{
		Subject:     p.ID,
		Username:    p.Username,
		Groups:      p.Groups,
		Permissions: NormalizePermissions(p.Permissions),
	})
}

// PrincipalFromToken verifies token and reloads the principal it names.
// Bad tokens and deleted principals fail with ErrUnauthorized, expired
// tokens with ErrSessionExpired. Groups and permissions come from storage,
// not from the token.
func (m *Manager) PrincipalFromToken(ctx context.Context, token string) (*Principal, error) {
	claims, err := m.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, ports.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrUnauthorized
	}
	if claims.Subject == "" {
		return nil, ErrUnauthorized
	}

	rec, err := m.resource.Get(ctx, schema.System, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if rec == nil {
		return nil, ErrUnauthorized
	}
	return FromRecord(rec), nil
}

// IsAdminGroup reports whether group grants administrator rights.
func (m *Manager) IsAdminGroup(group string) bool {
	return slices.Contains(m.config.AdminGroups, group)
}

// IsAdmin reports whether any of the principal's groups is an admin group.
func (m *Manager) IsAdmin(p *Principal) bool {
	return slices.ContainsFunc(p.MemberOf(), m.IsAdminGroup)
}

// Admins returns every principal in an admin group.
func (m *Manager) Admins(ctx context.Context) ([]*Principal, error) {
	groups := make([]any, len(m.config.AdminGroups))
	for i, g := range m.config.AdminGroups {
		groups[i] = g
	}

	recs, err := m.resource.Find(ctx, schema.System,
		storage.Query{"groups": map[string]any{"$in": groups}}, storage.FindOptions{})
	if err != nil {
		return nil, err
	}

	out := make([]*Principal, len(recs))
	for i, rec := range recs {
		out[i] = FromRecord(rec)
	}
	return out, nil
}

// FromRecord rebuilds a principal from a stored record.
func (m *Manager) FromRecord(rec storage.Record) *Principal {
	return FromRecord(rec)
}
