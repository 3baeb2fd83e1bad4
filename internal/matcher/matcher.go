// Package matcher finds which roster members appear in a submitted picture.
//
// One comparison is dispatched per member, concurrently. A member whose
// identity is missing, whose comparison fails, or who times out simply does
// not count as present; the batch always completes. Only a failure of the
// identity store itself aborts the batch.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/rollcall/internal/database"
)

const (
	DefaultThreshold     = 70.0
	DefaultMemberTimeout = 20 * time.Second
)

var (
	// ErrMemberTimeout marks a member whose lookup and comparison did not finish in time.
	ErrMemberTimeout = errors.New("member comparison timed out")
	errNoReference   = errors.New("identity has no reference picture")
)

// Outcome is how a single roster member resolved.
type Outcome string

const (
	OutcomeMatch   Outcome = "match"
	OutcomeNoMatch Outcome = "no_match"
	OutcomeMissing Outcome = "missing" // no identity registered under the key
	OutcomeFailed  Outcome = "failed"
)

// IdentityFinder resolves roster keys to identities.
type IdentityFinder interface {
	FindIdentityByKey(ctx context.Context, key string) (*database.Identity, error)
}

// Comparator decides whether reference shows someone present in target.
type Comparator interface {
	Compare(ctx context.Context, target, reference []byte, threshold float64) (bool, error)
}

// EmbeddingComparator is implemented by comparators that can reuse a stored
// reference face embedding instead of re-analysing the reference picture.
type EmbeddingComparator interface {
	CompareEmbedding(ctx context.Context, target []byte, reference []float32, threshold float64) (bool, error)
}

// MemberResult is the diagnostic for one roster member.
type MemberResult struct {
	Key         string
	DisplayName string
	Outcome     Outcome
	Err         error
	Duration    time.Duration

	storeFailure bool
}

// Result of one match batch.
type Result struct {
	BatchID string
	Present []string       // sorted member keys
	Members []MemberResult // roster order
}

// Failed returns the members whose comparison could not be completed.
func (r *Result) Failed() []MemberResult {
	var out []MemberResult
	for _, m := range r.Members {
		if m.Outcome == OutcomeFailed {
			out = append(out, m)
		}
	}
	return out
}

// Options tune a Matcher. Zero values select defaults.
type Options struct {
	Threshold     float64       // 0-100
	MemberTimeout time.Duration // per member, lookup and comparison together
	Concurrency   int           // max in-flight members, 0 means one per member
	Logger        *slog.Logger
}

// Matcher fans a picture out to every roster member and joins the results.
type Matcher struct {
	identities    IdentityFinder
	comparator    Comparator
	threshold     float64
	memberTimeout time.Duration
	concurrency   int
	logger        *slog.Logger
}

// New creates a matcher.
func New(identities IdentityFinder, comparator Comparator, opts Options) *Matcher {
	m := &Matcher{
		identities:    identities,
		comparator:    comparator,
		threshold:     opts.Threshold,
		memberTimeout: opts.MemberTimeout,
		concurrency:   opts.Concurrency,
		logger:        opts.Logger,
	}
	if m.threshold <= 0 {
		m.threshold = DefaultThreshold
	}
	if m.memberTimeout <= 0 {
		m.memberTimeout = DefaultMemberTimeout
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Threshold returns the similarity threshold in use.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match compares image against every member of roster and returns the present set.
// It returns once every member has resolved, or with ctx.Err() if ctx ends first.
// An error wrapping database.ErrUnavailable is returned when the identity store failed.
func (m *Matcher) Match(ctx context.Context, image []byte, roster []string) (*Result, error) {
	members := uniqueKeys(roster)
	result := &Result{
		BatchID: uuid.NewString(),
		Members: make([]MemberResult, len(members)),
	}
	logger := m.logger.With("batch_id", result.BatchID)
	start := time.Now()

	if len(members) == 0 {
		return m.finalize(logger, result, start)
	}

	concurrency := m.concurrency
	if concurrency <= 0 || concurrency > len(members) {
		concurrency = len(members)
	}
	sem := make(chan struct{}, concurrency)

	done := make(chan struct{})
	barrier := newJoinBarrier(len(members), func() { close(done) })

	for i, key := range members {
		go func() {
			defer barrier.Arrive()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				result.Members[i] = MemberResult{Key: key, Outcome: OutcomeFailed, Err: ctx.Err()}
				return
			}
			result.Members[i] = m.resolveMember(ctx, logger, image, key)
		}()
	}

	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("match batch abandoned", "roster", len(members), "error", ctx.Err())
		return nil, ctx.Err()
	}
	return m.finalize(logger, result, start)
}

func (m *Matcher) finalize(logger *slog.Logger, result *Result, start time.Time) (*Result, error) {
	result.Present = []string{}
	var failed int
	for _, member := range result.Members {
		switch member.Outcome {
		case OutcomeMatch:
			result.Present = append(result.Present, member.Key)
		case OutcomeFailed:
			if member.storeFailure {
				logger.Error("identity store failed during match", "member", member.Key, "error", member.Err)
				return nil, fmt.Errorf("looking up roster member %s: %w", member.Key, member.Err)
			}
			failed++
		}
	}
	slices.Sort(result.Present)

	logger.Info("match batch finalized",
		"roster", len(result.Members),
		"present", len(result.Present),
		"failed", failed,
		"duration", time.Since(start).Round(time.Millisecond))
	return result, nil
}

func (m *Matcher) resolveMember(ctx context.Context, logger *slog.Logger, image []byte, key string) MemberResult {
	start := time.Now()
	memberCtx, cancel := context.WithTimeout(ctx, m.memberTimeout)
	defer cancel()

	r := m.lookupAndCompare(memberCtx, image, key)
	r.Duration = time.Since(start)

	if r.Outcome == OutcomeFailed {
		logger.Warn("member comparison failed",
			"member", key, "outcome", r.Outcome, "error", r.Err, "duration", r.Duration)
	} else {
		logger.Debug("member resolved", "member", key, "outcome", r.Outcome, "duration", r.Duration)
	}
	return r
}

type compareOutcome struct {
	ok  bool
	err error
}

func (m *Matcher) lookupAndCompare(ctx context.Context, image []byte, key string) MemberResult {
	r := MemberResult{Key: key}

	identity, err := m.identities.FindIdentityByKey(ctx, key)
	if err != nil {
		r.Outcome = OutcomeFailed
		if ctx.Err() != nil {
			r.Err = memberTimeoutErr(ctx)
			return r
		}
		r.Err = err
		r.storeFailure = true
		return r
	}
	if identity == nil {
		r.Outcome = OutcomeMissing
		return r
	}
	r.DisplayName = identity.DisplayName

	// Run the comparison detached so a client that ignores ctx cannot stall the batch.
	ch := make(chan compareOutcome, 1)
	go func() {
		ok, err := m.compare(ctx, image, identity)
		ch <- compareOutcome{ok: ok, err: err}
	}()

	select {
	case c := <-ch:
		switch {
		case c.err != nil:
			r.Outcome = OutcomeFailed
			r.Err = c.err
		case c.ok:
			r.Outcome = OutcomeMatch
		default:
			r.Outcome = OutcomeNoMatch
		}
	case <-ctx.Done():
		r.Outcome = OutcomeFailed
		r.Err = memberTimeoutErr(ctx)
	}
	return r
}

func (m *Matcher) compare(ctx context.Context, image []byte, identity *database.Identity) (bool, error) {
	if ec, ok := m.comparator.(EmbeddingComparator); ok && len(identity.FaceEmbedding) > 0 {
		return ec.CompareEmbedding(ctx, image, identity.FaceEmbedding, m.threshold)
	}
	if len(identity.ReferenceImage) == 0 {
		return false, errNoReference
	}
	return m.comparator.Compare(ctx, image, identity.ReferenceImage, m.threshold)
}

func memberTimeoutErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrMemberTimeout
	}
	return ctx.Err()
}

// uniqueKeys drops empty and repeated keys, keeping first occurrences in order.
func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
