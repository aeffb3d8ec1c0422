package actionstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO actions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	p := NewPGDurable(db)
	err = p.Insert(context.Background(), record("7"))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGMarkNotified(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE actions SET post_notify_sent = true").
		WithArgs("7").
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := NewPGDurable(db)
	assert.NoError(t, p.MarkNotified(context.Background(), "7"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGMarkNotifiedMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE actions SET post_notify_sent = true").
		WithArgs("99").
		WillReturnResult(sqlmock.NewResult(0, 0))

	p := NewPGDurable(db)
	assert.ErrorIs(t, p.MarkNotified(context.Background(), "99"), ErrNotFound)
}

func TestPGLoadPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"action_id", "created_at", "stage", "source_document",
		"baseline_name", "baseline_site", "baseline_fixlet",
		"group_name", "group_id", "group_site", "group_type",
		"completion_offset", "pre_notify", "notify_ready", "post_notify_sent", "triggered_by",
	}).AddRow("7", created, "Pilot", "<BES/>", "Patch_A", "SiteA", "123",
		"SRV-GRP", "42", "ActionSite", "Automatic", "PT2H", true, true, false, "operator")

	mock.ExpectQuery("SELECT (.+) FROM actions").WillReturnRows(rows)

	p := NewPGDurable(db)
	recs, err := p.LoadPending(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "7", recs[0].ActionID)
	assert.Equal(t, "PT2H", recs[0].CompletionOff)
	assert.False(t, recs[0].PostNotifySent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGDeleteNotifiedBefore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM actions WHERE post_notify_sent = true").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	p := NewPGDurable(db)
	n, err := p.DeleteNotifiedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
