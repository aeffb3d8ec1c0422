package models

import (
	"strings"
	"time"
)

// GroupKind classifies how a target group's membership is evaluated on the
// endpoint side, which in turn selects the relevance template used to target it.
type GroupKind string

const (
	GroupAutomatic   GroupKind = "Automatic"
	GroupManual      GroupKind = "Manual"
	GroupServerBased GroupKind = "ServerBased"
)

// KindFromLabel maps a free-text group type label onto a GroupKind. The console
// reports the type as loose prose, so matching is a case-insensitive substring
// test; anything unrecognized is treated as server-based.
func KindFromLabel(label string) GroupKind {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "auto"):
		return GroupAutomatic
	case strings.Contains(l, "manual"):
		return GroupManual
	default:
		return GroupServerBased
	}
}

// TargetGroup is the resolved identity of a group name: enough to build the
// targeting relevance and to record provenance on the action.
type TargetGroup struct {
	Name string    `json:"name"`
	ID   string    `json:"id"`
	Site string    `json:"site"`
	Kind GroupKind `json:"kind"`
}

// ActionRecord is the central lifecycle entity: one row per action the console
// accepted. An ActionRecord without an ActionID is never persisted.
type ActionRecord struct {
	ActionID       string    `json:"actionId"`
	CreatedAt      time.Time `json:"createdAt"`
	Stage          string    `json:"stage"`
	SourceDocument string    `json:"sourceDocument"`
	BaselineName   string    `json:"baselineName"`
	BaselineSite   string    `json:"baselineSite"`
	BaselineFixlet string    `json:"baselineFixletId"`
	GroupName      string    `json:"groupName"`
	GroupID        string    `json:"groupId"`
	GroupSite      string    `json:"groupSite"`
	GroupType      string    `json:"groupType"`
	CompletionOff  string    `json:"completionOffset"`
	PreNotify      bool      `json:"preNotifyRequested"`
	NotifyReady    bool      `json:"notifyChannelReady"`
	PostNotifySent bool      `json:"postNotifySent"`
	TriggeredBy    string    `json:"triggeredBy"`
}

// ResultRow is one per-endpoint outcome tuple fetched after an action expires.
type ResultRow struct {
	Computer string `json:"computer"`
	Patch    string `json:"patch"`
	Status   string `json:"status"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

// Window is the caller-requested completion window. Either the structured
// fields are set, or LegacyHours carries the old bare-number form.
type Window struct {
	Days        int  `json:"days"`
	Hours       int  `json:"hours"`
	Minutes     int  `json:"minutes"`
	LegacyHours *int `json:"legacyHours,omitempty"`
}

// Millis normalizes the window to a millisecond duration.
func (w Window) Millis() int64 {
	if w.LegacyHours != nil {
		return int64(*w.LegacyHours) * 3600 * 1000
	}
	return (int64(w.Days)*24*3600 + int64(w.Hours)*3600 + int64(w.Minutes)*60) * 1000
}
