package bootstrap

import (
	"context"
	"time"

	"github.com/artpar/pocket/core/runtime"
	"github.com/artpar/pocket/core/schema"
	"github.com/artpar/pocket/core/users"
	"github.com/artpar/pocket/ports"
	"github.com/rs/zerolog"
)

// Built-in hook names usable from resource definition files.
const (
	HookTimestamps = "timestamps"
	HookOwner      = "owner"
	HookAudit      = "audit"
)

// RegisterHooks registers the built-in hook functions on rt.
//
//	hooks:
//	  before:
//	    create: [timestamps, owner]
//	    update: [timestamps]
//	  after:
//	    remove: [audit]
func RegisterHooks(rt *runtime.Runtime, clock ports.Clock, logger zerolog.Logger) {
	fns := rt.Functions()
	fns.Register(HookTimestamps, timestamps(clock))
	fns.Register(HookOwner, owner)
	fns.Register(HookAudit, audit(logger))

	logger.Debug().Strs("functions", fns.List()).Msg("built-in hooks registered")
}

// timestamps sets createdAt on creates and updatedAt on every write, as
// RFC 3339 strings. Resources using it declare both fields as strings.
func timestamps(clock ports.Clock) schema.Hook {
	return func(ctx context.Context, data *schema.HookData, hc *schema.HookContext) error {
		now := clock.Now().UTC().Format(time.RFC3339Nano)

		switch {
		case hc.Operation == "create":
			data.Payload["createdAt"] = now
			data.Payload["updatedAt"] = now
		case data.Payload != nil:
			data.Payload["updatedAt"] = now
		case data.Mutation != nil:
			set, ok := data.Mutation["$set"].(map[string]any)
			if !ok {
				if !hasOperators(data.Mutation) {
					data.Mutation["updatedAt"] = now
					return nil
				}
				set = make(map[string]any)
				data.Mutation["$set"] = set
			}
			set["updatedAt"] = now
		}
		return nil
	}
}

func hasOperators(m map[string]any) bool {
	for k := range m {
		if len(k) > 0 && k[0] == '$' {
			return true
		}
	}
	return false
}

// owner stamps new records with the creating principal's id.
func owner(ctx context.Context, data *schema.HookData, hc *schema.HookContext) error {
	if p, ok := hc.Member.(*users.Principal); ok && p != nil && p.ID != "" {
		data.Payload["owner"] = p.ID
	}
	return nil
}

// audit logs completed operations.
func audit(logger zerolog.Logger) schema.Hook {
	return func(ctx context.Context, data *schema.HookData, hc *schema.HookContext) error {
		ev := logger.Info().
			Str("resource", hc.Resource).
			Str("op", hc.Operation).
			Int("records", len(data.Records))
		if p, ok := hc.Member.(*users.Principal); ok && p != nil {
			ev = ev.Str("user_id", p.ID)
		}
		if data.Count > 0 {
			ev = ev.Int("count", data.Count)
		}
		ev.Msg("audit")
		return nil
	}
}
