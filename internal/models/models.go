package models

import "time"

type ShiftKind string

const (
	KindSingleEvent    ShiftKind = "single_event"
	KindRecurrentEvent ShiftKind = "recurrent_event"
	KindRotation       ShiftKind = "rotation"
	KindOverride       ShiftKind = "override"
)

type Frequency string

const (
	FrequencyNone    Frequency = "none"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ShiftDefinition is an on-call shift as stored. Start carries the wall-clock
// date and time with no offset; it is interpreted in TimeZone, or in the
// schedule default when TimeZone is empty.
type ShiftDefinition struct {
	ID         string        `json:"id"`
	OrgID      string        `json:"org_id"`
	TeamID     string        `json:"team_id,omitempty"`
	Name       string        `json:"name"`
	Kind       ShiftKind     `json:"type"`
	Start      time.Time     `json:"start"`
	Duration   time.Duration `json:"duration"`
	Frequency  Frequency     `json:"frequency,omitempty"`
	Interval   int           `json:"interval,omitempty"`
	ByDay      []string      `json:"by_day,omitempty"`
	ByMonth    []int         `json:"by_month,omitempty"`
	ByMonthday []int         `json:"by_monthday,omitempty"`
	Until      *time.Time    `json:"until,omitempty"`
	WeekStart  string        `json:"week_start,omitempty"`
	TimeZone   string        `json:"time_zone,omitempty"`
	Users      []string      `json:"users"`
	Level      int           `json:"level"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Recurring reports whether the shift expands through the recurrence evaluator.
func (s ShiftDefinition) Recurring() bool {
	return s.Kind == KindRecurrentEvent || s.Kind == KindRotation
}

type Schedule struct {
	ID       string   `json:"id"`
	OrgID    string   `json:"org_id"`
	Name     string   `json:"name"`
	TimeZone string   `json:"time_zone"`
	ShiftIDs []string `json:"shift_ids"`
}

type StepKind string

const (
	StepWait            StepKind = "wait"
	StepNotifyUser      StepKind = "notify_user"
	StepNotifySchedule  StepKind = "notify_schedule"
	StepNotifyUserGroup StepKind = "notify_user_group"
	StepRepeat          StepKind = "repeat"
)

// EscalationStep is one entry of an escalation policy. Target holds a user id,
// schedule id or group id depending on Kind; WaitDelay is only meaningful for
// wait steps.
type EscalationStep struct {
	Kind      StepKind      `json:"kind"`
	Target    string        `json:"target,omitempty"`
	WaitDelay time.Duration `json:"wait_delay,omitempty"`
}

type EscalationPolicy struct {
	ID    string           `json:"id"`
	OrgID string           `json:"org_id"`
	Name  string           `json:"name"`
	Steps []EscalationStep `json:"steps"`
}

type RunStatus string

const (
	RunActive       RunStatus = "ACTIVE"
	RunPaused       RunStatus = "PAUSED"
	RunAcknowledged RunStatus = "ACKNOWLEDGED"
	RunResolved     RunStatus = "RESOLVED"
	RunExhausted    RunStatus = "EXHAUSTED"
)

// Terminal reports whether the run can take no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunAcknowledged || s == RunResolved || s == RunExhausted
}

type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "PENDING"
	AttemptSent      AttemptStatus = "SENT"
	AttemptDelivered AttemptStatus = "DELIVERED"
	AttemptFailed    AttemptStatus = "FAILED"
	AttemptAcked     AttemptStatus = "ACKED"
)

type NotificationAttempt struct {
	ID            string        `json:"id"`
	IncidentID    string        `json:"incident_id"`
	UserID        string        `json:"user_id"`
	Channel       string        `json:"channel"`
	Status        AttemptStatus `json:"status"`
	AttemptCount  int           `json:"attempt_count"`
	LastAttemptAt time.Time     `json:"last_attempt_at"`
	LastError     string        `json:"last_error,omitempty"`
}

type EscalationRun struct {
	IncidentID string                `json:"incident_id"`
	PolicyID   string                `json:"policy_id"`
	StepIndex  int                   `json:"step_index"`
	Repeats    int                   `json:"repeats"`
	Status     RunStatus             `json:"status"`
	StartedAt  time.Time             `json:"started_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
	Attempts   []NotificationAttempt `json:"attempts"`
}
