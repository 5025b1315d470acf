package store

import (
	"context"

	"github.com/dmitrymomot/flagkit/pkg/evaluation"
)

// FlagWithRules bundles a flag with its ordered rules, the unit the
// evaluation service works with and the server cache stores.
type FlagWithRules struct {
	Flag  evaluation.Flag   `json:"flag"`
	Rules []evaluation.Rule `json:"rules"`
}

// RuleStore is the read contract the evaluation core consumes. Flags and
// rules are created and mutated by an external management layer; the core
// only reads them. Rules come back ordered by priority descending, then
// creation time ascending.
type RuleStore interface {
	// GetFlag returns the flag identified by application and key, or
	// ErrFlagNotFound.
	GetFlag(ctx context.Context, appID, key string) (*evaluation.Flag, error)

	// GetRules returns the rules attached to a flag in evaluation order.
	GetRules(ctx context.Context, flagID string) ([]evaluation.Rule, error)

	// ListFlags returns every flag of an application.
	ListFlags(ctx context.Context, appID string) ([]evaluation.Flag, error)
}

// APIKeyResolver resolves an API credential to the application it belongs
// to. Used by the transport layer to authenticate evaluation requests.
type APIKeyResolver interface {
	// ResolveAPIKey returns the application id owning the key, or
	// ErrAppNotFound.
	ResolveAPIKey(ctx context.Context, apiKey string) (string, error)
}
