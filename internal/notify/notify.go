// Package notify owns the two lifecycle emails: the optional pre-trigger
// announcement and the post-completion summary. Delivery itself is a
// collaborator behind the Mailer interface; this package builds messages and
// their CSV attachments.
package notify

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/fixstream/fixstream/internal/models"
)

// Mailer is the fire-and-forget delivery collaborator. Send returns a delivery
// receipt id or an error; callers decide whether an error matters.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Attachment is an optional CSV payload carried with a message.
type Attachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type Message struct {
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// MemberManifestCSV renders the group member list fetched at trigger time.
func MemberManifestCSV(members []string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"computer"}); err != nil {
		return "", err
	}
	for _, m := range members {
		if err := w.Write([]string{m}); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// ResultRowsCSV renders the per-endpoint outcome tuples for the completion mail.
func ResultRowsCSV(rows []models.ResultRow) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"computer", "patch", "status", "start", "end"}); err != nil {
		return "", err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Computer, r.Patch, r.Status, r.Start, r.End}); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// PreTriggerMessage announces a freshly-issued action, optionally with the
// member manifest attached.
func PreTriggerMessage(to []string, rec models.ActionRecord, manifestCSV string) Message {
	msg := Message{
		To:      to,
		Subject: fmt.Sprintf("[fixstream] %s: %s triggered against %s", rec.Stage, rec.BaselineName, rec.GroupName),
		Body: fmt.Sprintf(
			"Action %s was submitted at %s.\n\nBaseline: %s (site %s, fixlet %s)\nGroup: %s (%s)\nCompletion offset: %s\nTriggered by: %s\n",
			rec.ActionID, rec.CreatedAt.Format(time.RFC3339),
			rec.BaselineName, rec.BaselineSite, rec.BaselineFixlet,
			rec.GroupName, rec.GroupType,
			rec.CompletionOff, rec.TriggeredBy,
		),
	}
	if manifestCSV != "" {
		msg.Attachments = []Attachment{{
			Filename: fmt.Sprintf("members-%s.csv", rec.GroupName),
			Content:  manifestCSV,
		}}
	}
	return msg
}

// CompletionMessage summarizes an expired action with its result rows.
func CompletionMessage(to []string, rec models.ActionRecord, resultsCSV string) Message {
	msg := Message{
		To:      to,
		Subject: fmt.Sprintf("[fixstream] %s: %s completed on %s", rec.Stage, rec.BaselineName, rec.GroupName),
		Body: fmt.Sprintf(
			"Action %s has expired.\n\nBaseline: %s\nGroup: %s\nTriggered by: %s at %s\n\nPer-endpoint results are attached.\n",
			rec.ActionID,
			rec.BaselineName, rec.GroupName,
			rec.TriggeredBy, rec.CreatedAt.Format(time.RFC3339),
		),
	}
	if resultsCSV != "" {
		msg.Attachments = []Attachment{{
			Filename: fmt.Sprintf("results-%s.csv", rec.ActionID),
			Content:  resultsCSV,
		}}
	}
	return msg
}
