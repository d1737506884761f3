package model

import "time"

type ScheduleType string

const SCHEDULE_ONE_TIME ScheduleType = "one_time"
const SCHEDULE_DAILY ScheduleType = "daily"
const SCHEDULE_WEEKLY ScheduleType = "weekly"
const SCHEDULE_INTERVAL ScheduleType = "interval"
const SCHEDULE_CRON ScheduleType = "cron"

type ScheduleConfig struct {
	RunAt  time.Time `json:"runAt,omitempty"`
	Hour   int       `json:"hour,omitempty"`
	Minute int       `json:"minute,omitempty"`
	// Days uses Go weekday numbering, 0=Sunday.
	Days            []int  `json:"days,omitempty"`
	IntervalMinutes int    `json:"intervalMinutes,omitempty"`
	Cron            string `json:"cron,omitempty"`
}

type RetryPolicy struct {
	MaxAttempts       int     `json:"maxAttempts"`
	DelaySeconds      int     `json:"delaySeconds"`
	BackoffMultiplier float64 `json:"backoffMultiplier"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, DelaySeconds: 60, BackoffMultiplier: 2.0}
}

// Schedule triggers executions of one workflow. A failed trigger is retried
// per the policy but the schedule itself is never disabled automatically.
type Schedule struct {
	Id              string         `json:"id"`
	WorkflowId      string         `json:"workflowId"`
	Type            ScheduleType   `json:"type"`
	Config          ScheduleConfig `json:"config"`
	ParameterValues map[string]any `json:"parameterValues,omitempty"`
	Enabled         bool           `json:"enabled"`
	LastRun         time.Time      `json:"lastRun,omitempty"`
	NextRun         time.Time      `json:"nextRun,omitempty"`
	Retry           RetryPolicy    `json:"retry"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}
