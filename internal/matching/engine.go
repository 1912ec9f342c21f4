package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/denisok6893-rgb/estatebot/internal/domain"
	"github.com/denisok6893-rgb/estatebot/internal/metrics"
)

var (
	// ErrEmptyQuery is returned for a blank query. Callers filter these out before resolving.
	ErrEmptyQuery = errors.New("empty query")
	// ErrLookupFailed wraps any store error. It is not the same as finding nothing.
	ErrLookupFailed = errors.New("lookup failed")
)

// Store is the part of the record store the resolver needs.
type Store interface {
	FindBySubstring(ctx context.Context, q string) ([]domain.Project, error)
	FindBySimilarity(ctx context.Context, q string, threshold float64, limit int) ([]domain.Candidate, error)
}

// Outcome classifies a SearchResult for the caller.
type Outcome int

const (
	NoMatch Outcome = iota
	Unique
	Ambiguous
)

func (o Outcome) String() string {
	switch o {
	case Unique:
		return "unique"
	case Ambiguous:
		return "ambiguous"
	default:
		return "no_match"
	}
}

// Classify maps a result to its outcome.
func Classify(r domain.SearchResult) Outcome {
	switch len(r.Candidates) {
	case 0:
		return NoMatch
	case 1:
		return Unique
	default:
		return Ambiguous
	}
}

type Resolver struct {
	store Store
	cfg   Config
	log   *slog.Logger
}

func NewResolver(store Store, cfg Config, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{store: store, cfg: cfg, log: log.With(slog.String("component", "resolver"))}
}

func (r *Resolver) Config() Config { return r.cfg }

// Resolve runs the substring stage and falls back to similarity when it finds nothing.
// An empty result with a nil error means no match.
func (r *Resolver) Resolve(ctx context.Context, query string) (domain.SearchResult, error) {
	return r.ResolveMode(ctx, query, "")
}

// ResolveMode is Resolve restricted to one stage when mode is set.
func (r *Resolver) ResolveMode(ctx context.Context, query string, mode domain.MatchMode) (domain.SearchResult, error) {
	started := time.Now()
	q := strings.TrimSpace(query)
	if q == "" {
		return domain.SearchResult{}, ErrEmptyQuery
	}

	res, err := r.resolve(ctx, q, mode)
	outcome := Classify(res).String()
	if err != nil {
		outcome = "failed"
	}
	label := string(res.Mode)
	if label == "" {
		label = "none"
	}
	metrics.RecordResolution(label, outcome, time.Since(started).Seconds())

	if err != nil {
		return domain.SearchResult{}, err
	}
	r.log.Debug("resolved",
		slog.String("query", q),
		slog.String("mode", label),
		slog.Int("candidates", len(res.Candidates)))
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, q string, mode domain.MatchMode) (domain.SearchResult, error) {
	switch mode {
	case "", domain.ModeExact, domain.ModeSimilarity:
	default:
		return domain.SearchResult{}, fmt.Errorf("unknown match mode %q", mode)
	}

	if mode != domain.ModeSimilarity {
		projects, err := r.store.FindBySubstring(ctx, q)
		if err != nil {
			return domain.SearchResult{}, fmt.Errorf("%w: substring %q: %w", ErrLookupFailed, q, err)
		}
		if len(projects) > 0 || mode == domain.ModeExact {
			res := domain.SearchResult{Mode: domain.ModeExact, Candidates: make([]domain.Candidate, 0, len(projects))}
			for _, p := range projects {
				res.Candidates = append(res.Candidates, domain.Candidate{Project: p})
			}
			if len(projects) == 0 {
				res.Mode = ""
			}
			return res, nil
		}
	}

	cands, err := r.store.FindBySimilarity(ctx, q, r.cfg.SimilarityThreshold, r.cfg.TopK)
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("%w: similarity %q: %w", ErrLookupFailed, q, err)
	}
	// the store is trusted to cap, but TopK is ours to enforce
	if r.cfg.TopK > 0 && len(cands) > r.cfg.TopK {
		cands = cands[:r.cfg.TopK]
	}
	if len(cands) == 0 {
		return domain.SearchResult{Candidates: []domain.Candidate{}}, nil
	}
	return domain.SearchResult{Mode: domain.ModeSimilarity, Candidates: cands}, nil
}
