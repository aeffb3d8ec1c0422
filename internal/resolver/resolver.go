// Package resolver turns human-facing baseline and group names into the
// identifiers an action document needs, via exact-name relevance lookups
// against the console inventory.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/fixstream/fixstream/internal/models"
	"github.com/fixstream/fixstream/internal/ownership"
)

var (
	ErrBaselineNotFound = errors.New("baseline not found")
	ErrGroupNotFound    = errors.New("group not found")
	ErrShapeMismatch    = errors.New("unexpected response shape")

	// ErrGhostGroup marks a group we still have ownership records for but the
	// console no longer knows. The local row is deleted when this is returned,
	// so the operator can recreate the group under the same name.
	ErrGhostGroup = errors.New("group was deleted outside this service, please recreate it")
)

// Querier is the slice of the console client the resolver needs.
type Querier interface {
	Query(ctx context.Context, relevance string) ([]string, error)
}

// OwnershipStore is consulted (and pruned) on empty group lookups.
type OwnershipStore interface {
	LookupByName(ctx context.Context, name string) (ownership.Row, error)
	DeleteByName(ctx context.Context, name string) error
}

// Baseline is the resolved identity of a baseline name.
type Baseline struct {
	Site     string
	FixletID string
}

type Resolver struct {
	console   Querier
	ownership OwnershipStore
}

func New(console Querier, owner OwnershipStore) *Resolver {
	return &Resolver{console: console, ownership: owner}
}

// quoteRelevance escapes a literal string for embedding in a relevance
// expression.
func quoteRelevance(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// ResolveBaseline looks up a baseline by exact name and returns its owning
// site and fixlet id. Transport errors pass through verbatim; an empty answer
// is ErrBaselineNotFound; a partial tuple is ErrShapeMismatch.
func (r *Resolver) ResolveBaseline(ctx context.Context, name string) (Baseline, error) {
	rel := fmt.Sprintf(
		`(name of site of it, id of it) of bes fixlets whose (baseline flag of it and name of it = %s)`,
		quoteRelevance(name),
	)
	answers, err := r.console.Query(ctx, rel)
	if err != nil {
		return Baseline{}, err
	}
	if len(answers) == 0 {
		return Baseline{}, ErrBaselineNotFound
	}
	if len(answers) != 2 {
		return Baseline{}, fmt.Errorf("%w: baseline lookup returned %d value(s), want 2", ErrShapeMismatch, len(answers))
	}
	return Baseline{Site: answers[0], FixletID: answers[1]}, nil
}

// ResolveGroup looks up a group by exact name. An empty answer triggers the
// self-healing check: a name the ownership records still know is a ghost, and
// the stale row is deleted before the ghost error is reported.
func (r *Resolver) ResolveGroup(ctx context.Context, name string) (models.TargetGroup, error) {
	rel := fmt.Sprintf(
		`(id of it, name of site of it, group type of it) of bes computer groups whose (name of it = %s)`,
		quoteRelevance(name),
	)
	answers, err := r.console.Query(ctx, rel)
	if err != nil {
		return models.TargetGroup{}, err
	}
	if len(answers) == 0 {
		return models.TargetGroup{}, r.healMissingGroup(ctx, name)
	}
	if len(answers) != 3 {
		return models.TargetGroup{}, fmt.Errorf("%w: group lookup returned %d value(s), want 3", ErrShapeMismatch, len(answers))
	}
	return models.TargetGroup{
		Name: name,
		ID:   answers[0],
		Site: answers[1],
		Kind: models.KindFromLabel(answers[2]),
	}, nil
}

// healMissingGroup decides which "missing" a group is. Known locally but gone
// upstream means it was deleted out-of-band: drop the ownership row and report
// the ghost case so the operator's intent is preserved. Unknown on both sides
// is an ordinary not-found.
func (r *Resolver) healMissingGroup(ctx context.Context, name string) error {
	if r.ownership == nil {
		return ErrGroupNotFound
	}
	row, err := r.ownership.LookupByName(ctx, name)
	if errors.Is(err, ownership.ErrNotFound) {
		return ErrGroupNotFound
	}
	if err != nil {
		log.Printf("[resolver] ownership lookup for group %q failed: %v", name, err)
		return ErrGroupNotFound
	}
	if err := r.ownership.DeleteByName(ctx, name); err != nil {
		log.Printf("[resolver] could not delete stale ownership row for group %q (id %s): %v", name, row.GroupID, err)
	} else {
		log.Printf("[resolver] deleted stale ownership row for ghost group %q (id %s, created by %s)", name, row.GroupID, row.CreatedBy)
	}
	return ErrGhostGroup
}
