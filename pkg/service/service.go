package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/flagkit/pkg/cache"
	"github.com/dmitrymomot/flagkit/pkg/evaluation"
	"github.com/dmitrymomot/flagkit/pkg/recorder"
	"github.com/dmitrymomot/flagkit/pkg/store"
)

// Service orchestrates the evaluation path: server cache, rule store
// fallback, engine, and best-effort usage recording. It is stateless per
// call and safe for unbounded concurrent use.
type Service struct {
	store    store.RuleStore
	cache    *cache.FlagCache
	engine   *evaluation.Engine
	recorder recorder.Recorder
	log      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache attaches a server-side cache. Without one, every evaluation
// reads through to the store.
func WithCache(c *cache.FlagCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithRecorder sets the usage recorder.
func WithRecorder(r recorder.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates an evaluation service over the given rule store.
func New(ruleStore store.RuleStore, opts ...Option) *Service {
	s := &Service{
		store:    ruleStore,
		recorder: recorder.Noop{},
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = evaluation.NewEngine(s.log)
	return s
}

// EvaluateFlag decides one flag for one context. It always returns a
// well-formed result: business outcomes, including "no such flag" and
// internal failures, are reason codes rather than errors.
func (s *Service) EvaluateFlag(ctx context.Context, appID, flagKey string, evalCtx evaluation.Context) evaluation.Result {
	if appID == "" || flagKey == "" {
		return evaluation.Result{Enabled: false, FlagKey: flagKey, Reason: evaluation.ReasonInvalidInput}
	}

	fingerprint := cache.ContextFingerprint(evalCtx)
	if s.cache != nil {
		if res, ok := s.cache.GetEvaluation(ctx, flagKey, fingerprint); ok {
			s.recorder.Record(ctx, recorder.NewEvent(appID, *res, evalCtx))
			return *res
		}
	}

	fwr, err := s.flagWithRules(ctx, appID, flagKey)
	if errors.Is(err, store.ErrFlagNotFound) {
		return evaluation.Result{Enabled: false, FlagKey: flagKey, Reason: evaluation.ReasonFlagNotFound}
	}
	if err != nil {
		// Fail safe: a store outage turns the flag off rather than guessing.
		s.log.Error("flag lookup failed",
			slog.String("app_id", appID),
			slog.String("flag_key", flagKey),
			slog.Any("error", err))
		return evaluation.Result{Enabled: false, FlagKey: flagKey, Reason: evaluation.ReasonEvaluationError}
	}

	res := s.engine.Evaluate(&fwr.Flag, fwr.Rules, evalCtx)

	if s.cache != nil {
		s.cache.SetEvaluation(ctx, flagKey, fingerprint, &res)
	}
	s.recorder.Record(ctx, recorder.NewEvent(appID, res, evalCtx))
	return res
}

// EvaluateFlags decides a batch of flags concurrently and returns results
// keyed by flag key.
func (s *Service) EvaluateFlags(ctx context.Context, appID string, flagKeys []string, evalCtx evaluation.Context) map[string]evaluation.Result {
	results := make(map[string]evaluation.Result, len(flagKeys))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, flagKey := range flagKeys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := s.EvaluateFlag(ctx, appID, flagKey, evalCtx)
			mu.Lock()
			results[flagKey] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// AllFlags evaluates every flag of an application against the context.
// An application without flags yields an empty map. Only a store failure
// on the flag listing itself surfaces as an error; per-flag failures
// degrade to fail-safe results inside the map.
func (s *Service) AllFlags(ctx context.Context, appID string, evalCtx evaluation.Context) (map[string]evaluation.Result, error) {
	if appID == "" {
		return nil, ErrInvalidInput
	}

	flags, ok := s.cachedAppFlags(ctx, appID)
	if !ok {
		var err error
		flags, err = s.store.ListFlags(ctx, appID)
		if err != nil {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		if s.cache != nil && len(flags) > 0 {
			s.cache.SetAppFlags(ctx, appID, flags)
		}
	}

	results := make(map[string]evaluation.Result, len(flags))
	for _, flag := range flags {
		res := s.EvaluateFlag(ctx, appID, flag.Key, evalCtx)
		if res.FlagName == "" {
			res.FlagName = flag.Name
		}
		results[flag.Key] = res
	}
	return results, nil
}

// flagWithRules reads through the cache into the store.
func (s *Service) flagWithRules(ctx context.Context, appID, flagKey string) (*store.FlagWithRules, error) {
	if s.cache != nil {
		if fwr, ok := s.cache.GetFlagWithRules(ctx, appID, flagKey); ok {
			return fwr, nil
		}
	}

	flag, err := s.store.GetFlag(ctx, appID, flagKey)
	if err != nil {
		return nil, err
	}
	rules, err := s.store.GetRules(ctx, flag.ID)
	if err != nil {
		return nil, err
	}

	fwr := &store.FlagWithRules{Flag: *flag, Rules: rules}
	if s.cache != nil {
		s.cache.SetFlagWithRules(ctx, appID, flagKey, fwr)
	}
	return fwr, nil
}

func (s *Service) cachedAppFlags(ctx context.Context, appID string) ([]evaluation.Flag, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.GetAppFlags(ctx, appID)
}
