package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/flagkit/pkg/evaluation"
)

// MemoryStore is an in-memory RuleStore for tests and embedded setups. It
// doubles as the mutation surface a management layer would normally own,
// which keeps integration tests self-contained.
type MemoryStore struct {
	mu      sync.RWMutex
	flags   map[string]*evaluation.Flag // by flag id
	rules   map[string][]evaluation.Rule
	apiKeys map[string]string // api key -> app id
}

// NewMemoryStore creates an empty in-memory rule store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flags:   make(map[string]*evaluation.Flag),
		rules:   make(map[string][]evaluation.Rule),
		apiKeys: make(map[string]string),
	}
}

// PutFlag stores a flag, assigning an id and timestamps when missing, and
// returns the stored copy.
func (s *MemoryStore) PutFlag(flag evaluation.Flag) evaluation.Flag {
	s.mu.Lock()
	defer s.mu.Unlock()

	if flag.ID == "" {
		flag.ID = uuid.NewString()
	}
	now := time.Now()
	if flag.CreatedAt.IsZero() {
		flag.CreatedAt = now
	}
	flag.UpdatedAt = now

	s.flags[flag.ID] = &flag
	return flag
}

// PutRule attaches a rule to its flag, assigning an id and creation time
// when missing.
func (s *MemoryStore) PutRule(rule evaluation.Rule) evaluation.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}

	rules := s.rules[rule.FlagID]
	idx := slices.IndexFunc(rules, func(r evaluation.Rule) bool { return r.ID == rule.ID })
	if idx >= 0 {
		rules[idx] = rule
	} else {
		rules = append(rules, rule)
	}
	s.rules[rule.FlagID] = rules
	return rule
}

// DeleteFlag removes a flag and its rules.
func (s *MemoryStore) DeleteFlag(flagID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, flagID)
	delete(s.rules, flagID)
}

// SetAPIKey registers an API credential for an application.
func (s *MemoryStore) SetAPIKey(apiKey, appID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKeys[apiKey] = appID
}

// GetFlag implements RuleStore.
func (s *MemoryStore) GetFlag(_ context.Context, appID, key string) (*evaluation.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, flag := range s.flags {
		if flag.AppID == appID && flag.Key == key {
			cp := *flag
			return &cp, nil
		}
	}
	return nil, ErrFlagNotFound
}

// GetRules implements RuleStore, returning rules ordered by priority
// descending then creation time ascending.
func (s *MemoryStore) GetRules(_ context.Context, flagID string) ([]evaluation.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := slices.Clone(s.rules[flagID])
	slices.SortStableFunc(rules, func(a, b evaluation.Rule) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return rules, nil
}

// ListFlags implements RuleStore.
func (s *MemoryStore) ListFlags(_ context.Context, appID string) ([]evaluation.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var flags []evaluation.Flag
	for _, flag := range s.flags {
		if flag.AppID == appID {
			flags = append(flags, *flag)
		}
	}
	slices.SortFunc(flags, func(a, b evaluation.Flag) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return flags, nil
}

// ResolveAPIKey implements APIKeyResolver.
func (s *MemoryStore) ResolveAPIKey(_ context.Context, apiKey string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appID, ok := s.apiKeys[apiKey]
	if !ok {
		return "", ErrAppNotFound
	}
	return appID, nil
}
