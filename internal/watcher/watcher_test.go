package watcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixstream/fixstream/internal/actionstore"
	"github.com/fixstream/fixstream/internal/events"
	"github.com/fixstream/fixstream/internal/models"
	"github.com/fixstream/fixstream/internal/notify"
)

type fakeStatusClient struct {
	status     map[string]string
	statusErr  error
	rows       []models.ResultRow
	resultsErr error
	polls      int
}

func (f *fakeStatusClient) ActionStatus(ctx context.Context, actionID string) (string, error) {
	f.polls++
	if f.statusErr != nil {
		return "", f.statusErr
	}
	return f.status[actionID], nil
}

func (f *fakeStatusClient) ActionResults(ctx context.Context, actionID string) ([]models.ResultRow, error) {
	if f.resultsErr != nil {
		return nil, f.resultsErr
	}
	return f.rows, nil
}

// orderedMailer records, at send time, whether the record had already been
// finalized, so tests can prove notification happens before finalization.
type orderedMailer struct {
	store           *actionstore.Store
	sent            []notify.Message
	err             error
	finalizedAtSend []bool
}

func (m *orderedMailer) Send(ctx context.Context, msg notify.Message) (string, error) {
	for _, rec := range m.store.All() {
		m.finalizedAtSend = append(m.finalizedAtSend, rec.PostNotifySent)
	}
	m.sent = append(m.sent, msg)
	return "receipt", m.err
}

type fakePublisher struct{ envs []events.Envelope }

func (f *fakePublisher) Publish(ctx context.Context, env events.Envelope) error {
	f.envs = append(f.envs, env)
	return nil
}
func (f *fakePublisher) Close() error { return nil }

type fakeArchiver struct {
	keys []string
	err  error
}

func (f *fakeArchiver) ArchiveResults(ctx context.Context, actionID, csvContent string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key := "actions/" + actionID + ".csv"
	f.keys = append(f.keys, key)
	return key, nil
}

func pendingRecord(id string) models.ActionRecord {
	return models.ActionRecord{
		ActionID:     id,
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Stage:        "Pilot",
		BaselineName: "Patch_A",
		GroupName:    "SRV-GRP",
		NotifyReady:  true,
	}
}

type watcherFixture struct {
	store     *actionstore.Store
	console   *fakeStatusClient
	mailer    *orderedMailer
	publisher *fakePublisher
	archiver  *fakeArchiver
	w         *Watcher
}

func newWatcherFixture(t *testing.T) *watcherFixture {
	t.Helper()
	f := &watcherFixture{
		store:     actionstore.New(nil),
		console:   &fakeStatusClient{status: map[string]string{}},
		publisher: &fakePublisher{},
		archiver:  &fakeArchiver{},
	}
	f.mailer = &orderedMailer{store: f.store}
	f.w = New(Options{
		Store:     f.store,
		Console:   f.console,
		Mailer:    f.mailer,
		Publisher: f.publisher,
		Archiver:  f.archiver,
		Config:    Config{Recipients: []string{"ops@example.com"}},
	})
	return f
}

func TestTickLeavesRunningActionsAlone(t *testing.T) {
	f := newWatcherFixture(t)
	require.NoError(t, f.store.Insert(context.Background(), pendingRecord("7")))
	f.console.status["7"] = "Running"

	f.w.Tick(context.Background())

	rec, _ := f.store.Get("7")
	assert.False(t, rec.PostNotifySent)
	assert.Empty(t, f.mailer.sent)
}

func TestTickPollFailureLeavesRecordForNextTick(t *testing.T) {
	f := newWatcherFixture(t)
	require.NoError(t, f.store.Insert(context.Background(), pendingRecord("7")))
	f.console.statusErr = errors.New("console unreachable")

	f.w.Tick(context.Background())

	rec, _ := f.store.Get("7")
	assert.False(t, rec.PostNotifySent)
	assert.Empty(t, f.mailer.sent)

	// Next tick succeeds normally.
	f.console.statusErr = nil
	f.console.status["7"] = "Expired"
	f.w.Tick(context.Background())
	rec, _ = f.store.Get("7")
	assert.True(t, rec.PostNotifySent)
}

func TestTickExpiredNotifiesExactlyOnce(t *testing.T) {
	f := newWatcherFixture(t)
	require.NoError(t, f.store.Insert(context.Background(), pendingRecord("7")))
	f.console.status["7"] = "Expired"
	f.console.rows = []models.ResultRow{{Computer: "web-1", Patch: "KB500", Status: "Fixed"}}

	f.w.Tick(context.Background())

	rec, _ := f.store.Get("7")
	assert.True(t, rec.PostNotifySent)
	require.Len(t, f.mailer.sent, 1)
	require.Len(t, f.mailer.sent[0].Attachments, 1)
	assert.Contains(t, f.mailer.sent[0].Attachments[0].Content, "web-1")

	// Finalization never precedes the notification attempt.
	for _, finalized := range f.mailer.finalizedAtSend {
		assert.False(t, finalized)
	}

	require.Len(t, f.publisher.envs, 1)
	assert.Equal(t, events.TypeActionExpired, f.publisher.envs[0].Type)
	assert.Equal(t, []string{"actions/7.csv"}, f.archiver.keys)

	// Repeated ticks never touch the finalized record again.
	pollsBefore := f.console.polls
	f.w.Tick(context.Background())
	f.w.Tick(context.Background())
	assert.Len(t, f.mailer.sent, 1)
	assert.Equal(t, pollsBefore, f.console.polls)
}

func TestTickNotificationFailureStillFinalizes(t *testing.T) {
	f := newWatcherFixture(t)
	require.NoError(t, f.store.Insert(context.Background(), pendingRecord("7")))
	f.console.status["7"] = "Expired"
	f.mailer.err = errors.New("relay down")

	f.w.Tick(context.Background())

	rec, _ := f.store.Get("7")
	// At-most-once delivery: one attempt, then finalize no matter what.
	assert.True(t, rec.PostNotifySent)
	assert.Len(t, f.mailer.sent, 1)

	f.w.Tick(context.Background())
	assert.Len(t, f.mailer.sent, 1)
}

func TestTickResultFetchFailureDegradesToEmptyAttachment(t *testing.T) {
	f := newWatcherFixture(t)
	require.NoError(t, f.store.Insert(context.Background(), pendingRecord("7")))
	f.console.status["7"] = "Expired"
	f.console.resultsErr = errors.New("query timeout")

	f.w.Tick(context.Background())

	rec, _ := f.store.Get("7")
	assert.True(t, rec.PostNotifySent)
	require.Len(t, f.mailer.sent, 1)
}

func TestTickTerminalMarkerIsCaseInsensitive(t *testing.T) {
	f := newWatcherFixture(t)
	require.NoError(t, f.store.Insert(context.Background(), pendingRecord("7")))
	f.console.status["7"] = "EXPIRED"

	f.w.Tick(context.Background())
	rec, _ := f.store.Get("7")
	assert.True(t, rec.PostNotifySent)
}

func TestWatcherWithoutMailerStillFinalizes(t *testing.T) {
	f := newWatcherFixture(t)
	f.w.mailer = nil
	require.NoError(t, f.store.Insert(context.Background(), pendingRecord("7")))
	f.console.status["7"] = "Expired"

	f.w.Tick(context.Background())
	rec, _ := f.store.Get("7")
	assert.True(t, rec.PostNotifySent)
}

func TestPollIntervalFloor(t *testing.T) {
	w := New(Options{
		Store:   actionstore.New(nil),
		Console: &fakeStatusClient{},
		Config:  Config{PollInterval: time.Second},
	})
	assert.Equal(t, 30*time.Second, w.cfg.PollInterval)
}

func TestRetentionNeverDeletesUnnotified(t *testing.T) {
	d := &recordingDurable{}
	store := actionstore.New(d)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRetention(store, time.Hour, 30, func() time.Time { return now })

	r.prune(context.Background())
	require.Len(t, d.cutoffs, 1)
	// The durable delete is scoped by the retention window; only finalized
	// rows are eligible at all (enforced by the store's delete predicate).
	assert.Equal(t, now.Add(-30*24*time.Hour), d.cutoffs[0])
}

type recordingDurable struct {
	cutoffs []time.Time
}

func (r *recordingDurable) Insert(ctx context.Context, rec models.ActionRecord) error { return nil }
func (r *recordingDurable) MarkNotified(ctx context.Context, actionID string) error   { return nil }
func (r *recordingDurable) LoadPending(ctx context.Context) ([]models.ActionRecord, error) {
	return nil, nil
}
func (r *recordingDurable) DeleteNotifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.cutoffs = append(r.cutoffs, cutoff)
	return 0, nil
}
