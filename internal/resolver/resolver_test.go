package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixstream/fixstream/internal/models"
	"github.com/fixstream/fixstream/internal/ownership"
)

type fakeQuerier struct {
	answers []string
	err     error
	lastRel string
}

func (f *fakeQuerier) Query(ctx context.Context, relevance string) ([]string, error) {
	f.lastRel = relevance
	return f.answers, f.err
}

type fakeOwnership struct {
	rows    map[string]ownership.Row
	deleted []string
}

func (f *fakeOwnership) LookupByName(ctx context.Context, name string) (ownership.Row, error) {
	row, ok := f.rows[name]
	if !ok {
		return ownership.Row{}, ownership.ErrNotFound
	}
	return row, nil
}

func (f *fakeOwnership) DeleteByName(ctx context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	delete(f.rows, name)
	return nil
}

func TestResolveBaseline(t *testing.T) {
	q := &fakeQuerier{answers: []string{"SiteA", "123"}}
	r := New(q, nil)

	b, err := r.ResolveBaseline(context.Background(), "Patch_A")
	require.NoError(t, err)
	assert.Equal(t, Baseline{Site: "SiteA", FixletID: "123"}, b)
	assert.Contains(t, q.lastRel, `"Patch_A"`)
}

func TestResolveBaselineNotFound(t *testing.T) {
	r := New(&fakeQuerier{answers: nil}, nil)
	_, err := r.ResolveBaseline(context.Background(), "Missing")
	assert.ErrorIs(t, err, ErrBaselineNotFound)
}

func TestResolveBaselineShapeMismatch(t *testing.T) {
	r := New(&fakeQuerier{answers: []string{"SiteA"}}, nil)
	_, err := r.ResolveBaseline(context.Background(), "Patch_A")
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.NotErrorIs(t, err, ErrBaselineNotFound)
}

func TestResolveBaselineQuotesName(t *testing.T) {
	q := &fakeQuerier{answers: []string{"SiteA", "123"}}
	r := New(q, nil)
	_, err := r.ResolveBaseline(context.Background(), `Patch "Q3"`)
	require.NoError(t, err)
	assert.Contains(t, q.lastRel, `"Patch \"Q3\""`)
}

func TestResolveBaselineTransportErrorPassesThrough(t *testing.T) {
	boom := errors.New("console returned HTTP 502: bad gateway")
	r := New(&fakeQuerier{err: boom}, nil)
	_, err := r.ResolveBaseline(context.Background(), "Patch_A")
	assert.ErrorIs(t, err, boom)
}

func TestResolveGroup(t *testing.T) {
	q := &fakeQuerier{answers: []string{"42", "ActionSite", "Automatic Group"}}
	r := New(q, nil)

	g, err := r.ResolveGroup(context.Background(), "SRV-GRP")
	require.NoError(t, err)
	assert.Equal(t, models.TargetGroup{
		Name: "SRV-GRP",
		ID:   "42",
		Site: "ActionSite",
		Kind: models.GroupAutomatic,
	}, g)
}

func TestResolveGroupShapeMismatch(t *testing.T) {
	r := New(&fakeQuerier{answers: []string{"42", "ActionSite"}}, nil)
	_, err := r.ResolveGroup(context.Background(), "SRV-GRP")
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestResolveGroupGhostSelfHeals(t *testing.T) {
	owner := &fakeOwnership{rows: map[string]ownership.Row{
		"SRV-GRP": {GroupID: "42", Name: "SRV-GRP", CreatedBy: "operator"},
	}}
	r := New(&fakeQuerier{answers: nil}, owner)

	_, err := r.ResolveGroup(context.Background(), "SRV-GRP")
	// The ghost case is always distinguished from a plain not-found.
	assert.ErrorIs(t, err, ErrGhostGroup)
	assert.NotErrorIs(t, err, ErrGroupNotFound)
	assert.Equal(t, []string{"SRV-GRP"}, owner.deleted)
}

func TestResolveGroupUnknownEverywhere(t *testing.T) {
	owner := &fakeOwnership{rows: map[string]ownership.Row{}}
	r := New(&fakeQuerier{answers: nil}, owner)

	_, err := r.ResolveGroup(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrGroupNotFound)
	assert.Empty(t, owner.deleted)
}

func TestResolveGroupNoOwnershipStore(t *testing.T) {
	r := New(&fakeQuerier{answers: nil}, nil)
	_, err := r.ResolveGroup(context.Background(), "SRV-GRP")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}
