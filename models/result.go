package models

import "time"

// Outcome: итог работы одного аккаунта.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Reason: категория причины пропуска или ошибки.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonSessionUnavailable Reason = "SessionUnavailable"
	ReasonRateLimited        Reason = "RateLimited"
	ReasonTransientNetwork   Reason = "TransientNetwork"
	ReasonPermissionDenied   Reason = "PermissionDenied"
	ReasonJoinFailed         Reason = "JoinFailed"
	ReasonNoDiscussion       Reason = "NoDiscussion"
	ReasonNoEligiblePosts    Reason = "NoEligiblePosts"
	ReasonReactionsDisabled  Reason = "ReactionsDisabled"
	ReasonGenerationFailed   Reason = "GenerationFailed"
	ReasonDeadlineExceeded   Reason = "DeadlineExceeded"
	ReasonCancelled          Reason = "Cancelled"
	ReasonInternal           Reason = "Internal"
)

// ExecutionResult: единственный отчёт воркера об аккаунте.
type ExecutionResult struct {
	AccountID  string       `json:"account_id"`
	Outcome    Outcome      `json:"outcome"`
	Reason     Reason       `json:"reason,omitempty"`
	Detail     string       `json:"detail,omitempty"`
	Count      int          `json:"count"`
	ToneCounts map[Tone]int `json:"tone_counts,omitempty"`
	At         time.Time    `json:"at"`
}

// RunState: состояние запуска действия целиком.
type RunState string

const (
	RunPending     RunState = "pending"
	RunDispatching RunState = "dispatching"
	RunRunning     RunState = "running"
	RunCompleted   RunState = "completed"
	RunTimedOut    RunState = "timed_out"
)

// Terminal сообщает, что из состояния больше нет переходов.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunTimedOut
}

// RunSummary: итог запуска действия по всем аккаунтам.
type RunSummary struct {
	RunID      string            `json:"run_id"`
	ActionID   int               `json:"action_id"`
	State      RunState          `json:"state"`
	NoAccounts bool              `json:"no_accounts"`
	Total      int               `json:"total_accounts"`
	Succeeded  int               `json:"succeeded"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
	Performed  int               `json:"performed"`
	Results    []ExecutionResult `json:"results"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}
