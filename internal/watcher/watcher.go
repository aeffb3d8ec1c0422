// Package watcher runs the background lifecycle loops: the poll loop that
// detects expired actions and sends the one-and-only completion notification,
// and the much slower retention loop that prunes finalized rows.
package watcher

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/fixstream/fixstream/internal/actionstore"
	"github.com/fixstream/fixstream/internal/config"
	"github.com/fixstream/fixstream/internal/events"
	"github.com/fixstream/fixstream/internal/models"
	"github.com/fixstream/fixstream/internal/notify"
)

// StatusClient is the polling slice of the console client.
type StatusClient interface {
	ActionStatus(ctx context.Context, actionID string) (string, error)
	ActionResults(ctx context.Context, actionID string) ([]models.ResultRow, error)
}

// Config tunes the watcher. Zero values get defaults; the poll interval is
// floored so a misconfigured environment cannot hammer the console.
type Config struct {
	PollInterval time.Duration
	CallTimeout  time.Duration
	Recipients   []string
}

type Watcher struct {
	store     *actionstore.Store
	console   StatusClient
	mailer    notify.Mailer
	publisher events.Publisher
	archiver  events.Archiver
	cfg       Config

	now func() time.Time
}

// Options carries the watcher's collaborators. Mailer, publisher and archiver
// may each be nil; the corresponding side effect is skipped.
type Options struct {
	Store     *actionstore.Store
	Console   StatusClient
	Mailer    notify.Mailer
	Publisher events.Publisher
	Archiver  events.Archiver
	Config    Config
	Now       func() time.Time
}

func New(opts Options) *Watcher {
	cfg := opts.Config
	if cfg.PollInterval < config.MinPollInterval {
		cfg.PollInterval = config.MinPollInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	w := &Watcher{
		store:     opts.Store,
		console:   opts.Console,
		mailer:    opts.Mailer,
		publisher: opts.Publisher,
		archiver:  opts.Archiver,
		cfg:       cfg,
		now:       opts.Now,
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

// Run blocks until ctx is cancelled, waking on a fixed interval. Cancellation
// lets the current tick finish: no side effect is applied until a record's
// whole status-fetch-notify-finalize chain completes.
func (w *Watcher) Run(ctx context.Context) error {
	log.Printf("[watcher] starting (interval=%s)", w.cfg.PollInterval)
	defer log.Printf("[watcher] stopped")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick processes every record still awaiting notification. Records are
// handled one at a time; the chain for a single record is never parallelized
// because finalization must observe the completed notification attempt.
func (w *Watcher) Tick(ctx context.Context) {
	for _, rec := range w.store.Pending() {
		w.process(ctx, rec)
	}
}

// isTerminal reports whether a status token marks the end of an action's life.
func isTerminal(status string) bool {
	return strings.Contains(strings.ToLower(status), "expired")
}

func (w *Watcher) process(ctx context.Context, rec models.ActionRecord) {
	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	status, err := w.console.ActionStatus(callCtx, rec.ActionID)
	cancel()
	if err != nil {
		// The next tick is the retry; no backoff needed.
		log.Printf("[watcher] status poll for action %s failed, will retry next tick: %v", rec.ActionID, err)
		return
	}
	if !isTerminal(status) {
		return
	}

	// Result rows are audit garnish; a fetch failure degrades to an empty
	// attachment rather than holding up finalization.
	callCtx, cancel = context.WithTimeout(ctx, w.cfg.CallTimeout)
	rows, err := w.console.ActionResults(callCtx, rec.ActionID)
	cancel()
	if err != nil {
		log.Printf("[watcher] result fetch for action %s failed, notifying without results: %v", rec.ActionID, err)
		rows = nil
	}

	csvText, err := notify.ResultRowsCSV(rows)
	if err != nil {
		log.Printf("[watcher] result csv for action %s failed: %v", rec.ActionID, err)
		csvText = ""
	}

	w.archive(ctx, rec.ActionID, csvText)

	// One delivery attempt, success or failure. A broken mail channel must
	// not wedge the record into a retry storm.
	if w.mailer != nil && rec.NotifyReady {
		msg := notify.CompletionMessage(w.cfg.Recipients, rec, csvText)
		callCtx, cancel = context.WithTimeout(ctx, w.cfg.CallTimeout)
		_, err = w.mailer.Send(callCtx, msg)
		cancel()
		if err != nil {
			log.Printf("[watcher] completion notification for action %s failed (finalizing anyway): %v", rec.ActionID, err)
		}
	}

	if err := w.store.MarkNotified(ctx, rec.ActionID); err != nil {
		log.Printf("[watcher] finalize for action %s failed: %v", rec.ActionID, err)
		return
	}
	log.Printf("[watcher] action %s expired and finalized (%d result row(s))", rec.ActionID, len(rows))

	w.publishExpired(ctx, rec)
}

func (w *Watcher) archive(ctx context.Context, actionID, csvText string) {
	if w.archiver == nil || csvText == "" {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()
	key, err := w.archiver.ArchiveResults(callCtx, actionID, csvText)
	if err != nil {
		log.Printf("[watcher] result archive for action %s failed: %v", actionID, err)
		return
	}
	log.Printf("[watcher] archived results for action %s at %s", actionID, key)
}

func (w *Watcher) publishExpired(ctx context.Context, rec models.ActionRecord) {
	if w.publisher == nil {
		return
	}
	env := events.Envelope{
		Type:     events.TypeActionExpired,
		ActionID: rec.ActionID,
		Baseline: rec.BaselineName,
		Group:    rec.GroupName,
		Stage:    rec.Stage,
		Ts:       w.now().UTC(),
	}
	if err := w.publisher.Publish(ctx, env); err != nil {
		log.Printf("[watcher] lifecycle event for action %s not published: %v", rec.ActionID, err)
	}
}
