// Package ownership tracks which group identifiers this service handed out,
// and to whom. The resolver consults it to tell "group never existed" apart
// from "group existed but was deleted out-of-band on the console".
package ownership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("ownership row not found")

// Row maps an externally-issued group identifier to its name and creator.
type Row struct {
	GroupID   string
	Name      string
	CreatedBy string
	Role      string
}

type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// LookupByName returns the ownership row for a group name.
func (r *Repo) LookupByName(ctx context.Context, name string) (Row, error) {
	q := `SELECT group_id, name, created_by, role FROM group_ownership WHERE name = $1`
	var row Row
	err := r.db.QueryRowContext(ctx, q, name).Scan(&row.GroupID, &row.Name, &row.CreatedBy, &row.Role)
	if err == sql.ErrNoRows {
		return Row{}, ErrNotFound
	}
	if err != nil {
		return Row{}, fmt.Errorf("lookup group ownership: %w", err)
	}
	return row, nil
}

// DeleteByName removes the ownership row for a group name. Used by the
// resolver's self-healing path when the console no longer knows the group.
func (r *Repo) DeleteByName(ctx context.Context, name string) error {
	q := `DELETE FROM group_ownership WHERE name = $1`
	if _, err := r.db.ExecContext(ctx, q, name); err != nil {
		return fmt.Errorf("delete group ownership: %w", err)
	}
	return nil
}
