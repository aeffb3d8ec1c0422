// Package dispatcher orchestrates a trigger request end to end: change gate,
// name resolution, document synthesis, submission, persistence and the
// optional pre-trigger notification.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fixstream/fixstream/internal/actionstore"
	"github.com/fixstream/fixstream/internal/change"
	"github.com/fixstream/fixstream/internal/console"
	"github.com/fixstream/fixstream/internal/events"
	"github.com/fixstream/fixstream/internal/models"
	"github.com/fixstream/fixstream/internal/notify"
	"github.com/fixstream/fixstream/internal/resolver"
	"github.com/fixstream/fixstream/internal/synth"
)

// Error codes returned to callers of Trigger.
const (
	CodeNotFound   = "not-found"
	CodeGhost      = "ghost-asset"
	CodeShape      = "shape-mismatch"
	CodeValidation = "validation"
	CodeUpstream   = "upstream-rejection"
)

// TriggerError is a structured, machine-readable trigger failure.
type TriggerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Targets is the resolver surface the dispatcher depends on.
type Targets interface {
	ResolveBaseline(ctx context.Context, name string) (resolver.Baseline, error)
	ResolveGroup(ctx context.Context, name string) (models.TargetGroup, error)
}

// Console is the submission-side slice of the console client.
type Console interface {
	Query(ctx context.Context, relevance string) ([]string, error)
	SubmitAction(ctx context.Context, document string) (string, error)
}

// TriggerRequest is the produced interface of this subsystem.
type TriggerRequest struct {
	BaselineName        string
	GroupName           string
	Stage               string
	Window              models.Window
	ChangeTicket        string
	RequireChangeTicket bool
	Notify              bool
	Recipients          []string
	TriggeredBy         string
}

// TriggerResult echoes back the resolved metadata alongside the assigned id.
type TriggerResult struct {
	ActionID         string             `json:"actionId"`
	CreatedAt        time.Time          `json:"createdAt"`
	BaselineSite     string             `json:"baselineSite"`
	BaselineFixletID string             `json:"baselineFixletId"`
	Group            models.TargetGroup `json:"group"`
	CompletionOffset string             `json:"completionOffset"`
}

type Dispatcher struct {
	targets   Targets
	console   Console
	store     *actionstore.Store
	validator change.Validator
	mailer    notify.Mailer
	publisher events.Publisher

	// utcOffset supplies the machine-local UTC delta for offset correction;
	// injectable for tests.
	utcOffset func() time.Duration
	now       func() time.Time
}

type Options struct {
	Targets   Targets
	Console   Console
	Store     *actionstore.Store
	Validator change.Validator
	Mailer    notify.Mailer
	Publisher events.Publisher
	UTCOffset func() time.Duration
	Now       func() time.Time
}

func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		targets:   opts.Targets,
		console:   opts.Console,
		store:     opts.Store,
		validator: opts.Validator,
		mailer:    opts.Mailer,
		publisher: opts.Publisher,
		utcOffset: opts.UTCOffset,
		now:       opts.Now,
	}
	if d.utcOffset == nil {
		d.utcOffset = synth.LocalUTCOffset
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Trigger runs the full dispatch sequence. The change gate runs strictly
// before any state-mutating call; everything after a successful submission is
// best-effort and can no longer fail the request.
func (d *Dispatcher) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	// (1) Change gate.
	if req.RequireChangeTicket {
		if req.ChangeTicket == "" {
			return nil, &TriggerError{Code: CodeValidation, Message: "change ticket required but not supplied"}
		}
		if d.validator == nil {
			return nil, &TriggerError{Code: CodeValidation, Message: "change ticket required but validation service not configured"}
		}
		verdict, err := d.validator.Validate(ctx, req.ChangeTicket, req.Stage)
		if err != nil {
			return nil, &TriggerError{Code: CodeValidation, Message: fmt.Sprintf("change ticket %s could not be validated: %v", req.ChangeTicket, err)}
		}
		if verdict != change.Approved {
			return nil, &TriggerError{Code: CodeValidation, Message: fmt.Sprintf("change ticket %s rejected: %s", req.ChangeTicket, verdict)}
		}
	}

	// (2) Resolve baseline.
	baseline, err := d.targets.ResolveBaseline(ctx, req.BaselineName)
	if err != nil {
		return nil, classifyResolveErr(err, "baseline "+req.BaselineName)
	}

	// (3) Resolve group (self-healing happens inside the resolver).
	group, err := d.targets.ResolveGroup(ctx, req.GroupName)
	if err != nil {
		return nil, classifyResolveErr(err, "group "+req.GroupName)
	}

	// (4) Best-effort member manifest for the pre-trigger mail.
	var manifestCSV string
	if req.Notify {
		members, err := d.fetchMembers(ctx, group)
		if err != nil {
			log.Printf("[dispatcher] member manifest for group %q unavailable, notifying without it: %v", group.Name, err)
		} else if csvText, err := notify.MemberManifestCSV(members); err == nil {
			manifestCSV = csvText
		}
	}

	// (5) Synthesize targeting and deadline.
	expr := synth.BuildTargetRelevance(group)
	offset, err := synth.ComputeCompletionOffset(req.Window, d.utcOffset())
	if err != nil {
		return nil, &TriggerError{Code: CodeValidation, Message: err.Error()}
	}

	// (6) Build and submit the document.
	title := fmt.Sprintf("%s - %s - %s", req.Stage, req.BaselineName, req.GroupName)
	document := synth.BuildActionDocument(synth.DocumentParams{
		Site:            baseline.Site,
		FixletID:        baseline.FixletID,
		TargetRelevance: expr,
		Offset:          offset,
		Title:           title,
	})
	ack, err := d.console.SubmitAction(ctx, document)
	if err != nil {
		return nil, &TriggerError{Code: CodeUpstream, Message: err.Error()}
	}

	// (7) Extract the assigned identifier. A missing id is logged, not fatal:
	// the console may have accepted the action anyway.
	actionID, ok := console.ExtractActionID(ack)
	createdAt := d.now().UTC()
	result := &TriggerResult{
		ActionID:         actionID,
		CreatedAt:        createdAt,
		BaselineSite:     baseline.Site,
		BaselineFixletID: baseline.FixletID,
		Group:            group,
		CompletionOffset: offset,
	}
	if !ok {
		log.Printf("[dispatcher] submission accepted but no action id found in acknowledgment (baseline %q, group %q); record not persisted", req.BaselineName, req.GroupName)
		return result, nil
	}

	// (8) Persist. Durable failure is absorbed inside the store.
	rec := models.ActionRecord{
		ActionID:       actionID,
		CreatedAt:      createdAt,
		Stage:          req.Stage,
		SourceDocument: document,
		BaselineName:   req.BaselineName,
		BaselineSite:   baseline.Site,
		BaselineFixlet: baseline.FixletID,
		GroupName:      group.Name,
		GroupID:        group.ID,
		GroupSite:      group.Site,
		GroupType:      string(group.Kind),
		CompletionOff:  offset,
		PreNotify:      req.Notify,
		NotifyReady:    d.mailer != nil && len(req.Recipients) > 0,
		TriggeredBy:    req.TriggeredBy,
	}
	if err := d.store.Insert(ctx, rec); err != nil {
		log.Printf("[dispatcher] could not record action %s: %v", actionID, err)
	}

	d.publishTriggered(ctx, rec)

	// (9) Pre-trigger notification; failure is logged, never propagated.
	if rec.PreNotify && rec.NotifyReady {
		msg := notify.PreTriggerMessage(req.Recipients, rec, manifestCSV)
		if _, err := d.mailer.Send(ctx, msg); err != nil {
			log.Printf("[dispatcher] pre-trigger notification for action %s failed: %v", actionID, err)
		}
	}

	return result, nil
}

func (d *Dispatcher) fetchMembers(ctx context.Context, group models.TargetGroup) ([]string, error) {
	rel := fmt.Sprintf(`(name of it) of members of bes computer group whose (name of it = "%s")`, group.Name)
	return d.console.Query(ctx, rel)
}

func (d *Dispatcher) publishTriggered(ctx context.Context, rec models.ActionRecord) {
	if d.publisher == nil {
		return
	}
	env := events.Envelope{
		Type:     events.TypeActionTriggered,
		ActionID: rec.ActionID,
		Baseline: rec.BaselineName,
		Group:    rec.GroupName,
		Stage:    rec.Stage,
		Ts:       rec.CreatedAt,
	}
	if err := d.publisher.Publish(ctx, env); err != nil {
		log.Printf("[dispatcher] lifecycle event for action %s not published: %v", rec.ActionID, err)
	}
}

func classifyResolveErr(err error, subject string) error {
	switch {
	case errors.Is(err, resolver.ErrBaselineNotFound), errors.Is(err, resolver.ErrGroupNotFound):
		return &TriggerError{Code: CodeNotFound, Message: subject + " not found"}
	case errors.Is(err, resolver.ErrGhostGroup):
		return &TriggerError{Code: CodeGhost, Message: subject + " was deleted outside this service, please recreate it"}
	case errors.Is(err, resolver.ErrShapeMismatch):
		return &TriggerError{Code: CodeShape, Message: err.Error()}
	default:
		return &TriggerError{Code: CodeUpstream, Message: err.Error()}
	}
}
