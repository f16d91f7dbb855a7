// File: internal/resolver/resolver.go
// The resolver decides which locator strategy currently works for a logical
// target. It probes candidates most-confident-first, scores what it observes,
// and falls back to the adaptation capability exactly once per resolution.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

// ErrEmptyCandidateSet indicates a configuration bug: a logical target with
// no declared candidates. It fails immediately, without adaptation.
var ErrEmptyCandidateSet = errors.New("candidate set is empty")

// Resolver picks a working locator strategy for a logical target against the
// current page. It is stateless across calls; learned candidates live in the
// caller's (job-scoped) candidate sets.
type Resolver struct {
	logger    *zap.Logger
	scorer    Scorer
	threshold float64
	proposer  schemas.ProposalProvider
}

// New creates a Resolver. The proposer may be nil, in which case resolution
// fails directly when no known candidate clears the threshold.
func New(cfg config.ResolverConfig, logger *zap.Logger, proposer schemas.ProposalProvider) *Resolver {
	return &Resolver{
		logger:    logger.Named("resolver"),
		scorer:    UniquenessScorer{AmbiguityPenalty: cfg.AmbiguityPenalty},
		threshold: cfg.AcceptThreshold,
		proposer:  proposer,
	}
}

// Resolve finds a usable strategy for the set's target on the given page.
// The returned attempts list is the complete audit trail (every probed
// strategy with its observed confidence, accepted or not) and is returned
// for both outcomes so the caller can log it either way.
//
// On failure of all declared candidates the adaptation capability is invoked
// exactly once; proposals are appended to the set (idempotently, so the
// audit of earlier strategies is preserved) and only the newly added
// candidates are probed in the second pass.
func (r *Resolver) Resolve(ctx context.Context, set *schemas.CandidateSet, page schemas.Page) (schemas.Resolution, []schemas.ResolutionAttempt, error) {
	if set == nil || len(set.Candidates) == 0 {
		targetName := ""
		if set != nil {
			targetName = set.Target
		}
		return schemas.Resolution{}, nil, fmt.Errorf("target %q: %w", targetName, ErrEmptyCandidateSet)
	}

	attempts := make([]schemas.ResolutionAttempt, 0, len(set.Candidates))

	res, attempts, err := r.probe(ctx, set.Candidates, page, attempts)
	if err != nil {
		return schemas.Resolution{}, attempts, err
	}
	if res != nil {
		return *res, attempts, nil
	}

	// Every declared candidate failed; run the adaptation round once.
	if r.proposer != nil {
		known := len(set.Candidates)

		markup, err := page.Content(ctx)
		if err != nil {
			return schemas.Resolution{}, attempts, fmt.Errorf("reading page content for adaptation: %w", err)
		}

		proposed, err := r.proposer.ProposeAlternatives(ctx, set.Target, set.Candidates, markup)
		if err != nil {
			// Adaptation is best effort; a failed proposal round degrades to
			// a plain resolution failure rather than a distinct error.
			r.logger.Warn("Adaptation capability failed",
				zap.String("target", set.Target), zap.Error(err))
		} else if added := set.Append(proposed...); added > 0 {
			r.logger.Info("Adaptation proposed new candidates",
				zap.String("target", set.Target), zap.Int("added", added))

			res, attempts, err = r.probe(ctx, set.Candidates[known:], page, attempts)
			if err != nil {
				return schemas.Resolution{}, attempts, err
			}
			if res != nil {
				return *res, attempts, nil
			}
		}
	}

	return schemas.Resolution{}, attempts, &schemas.ResolutionFailure{
		Target:    set.Target,
		Attempted: attempts,
	}
}

// probe queries the given candidates in descending prior order and returns
// the first acceptable resolution, or nil if none clears the threshold.
// Candidates with equal priors keep their declared order: ties are broken by
// position, deterministically, never randomly.
func (r *Resolver) probe(ctx context.Context, candidates []schemas.Candidate, page schemas.Page, attempts []schemas.ResolutionAttempt) (*schemas.Resolution, []schemas.ResolutionAttempt, error) {
	ordered := append([]schemas.Candidate(nil), candidates...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Prior > ordered[j].Prior
	})

	for _, candidate := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, attempts, err
		}

		handles, err := page.Query(ctx, candidate.Strategy)
		if err != nil {
			return nil, attempts, fmt.Errorf("querying %s: %w", candidate.Strategy, err)
		}

		observed := r.scorer.Score(candidate.Prior, len(handles))
		accepted := observed >= r.threshold

		attempts = append(attempts, schemas.ResolutionAttempt{
			Strategy: candidate.Strategy,
			Prior:    candidate.Prior,
			Matches:  len(handles),
			Observed: observed,
			Accepted: accepted,
		})

		r.logger.Debug("Probed locator strategy",
			zap.String("strategy", candidate.Strategy.String()),
			zap.Int("matches", len(handles)),
			zap.Float64("observed", observed),
			zap.Bool("accepted", accepted),
		)

		if accepted {
			return &schemas.Resolution{Strategy: candidate.Strategy, Confidence: observed}, attempts, nil
		}
	}
	return nil, attempts, nil
}
