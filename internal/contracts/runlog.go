package contracts

import (
	"time"

	"github.com/google/uuid"
)

// MaxRunErrors caps the error messages kept on a run log; excess messages are dropped
const MaxRunErrors = 100

// RunStatus is the lifecycle state of a collection run log
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunLog summarizes one collection run
// ⭐ SSOT: 실행 로그는 파이프라인 종료 시 정확히 한 번 기록
type RunLog struct {
	ID             int64     `json:"id"`
	RunKey         string    `json:"run_key"`
	CollectionDate time.Time `json:"collection_date"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time,omitempty"`

	TotalAttempted int `json:"total_attempted"`
	TotalSucceeded int `json:"total_succeeded"`
	TotalFailed    int `json:"total_failed"`

	Stage1Success int `json:"stage1_success"`
	Stage1Failed  int `json:"stage1_failed"`
	Stage2Success int `json:"stage2_success"`
	Stage2Failed  int `json:"stage2_failed"`

	Errors []string  `json:"errors"`
	Status RunStatus `json:"status"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// NewRunLog starts a run log in the running state
func NewRunLog(date time.Time, start time.Time) *RunLog {
	return &RunLog{
		RunKey:         uuid.NewString(),
		CollectionDate: date,
		StartTime:      start,
		Errors:         []string{},
		Status:         RunRunning,
	}
}

// AddError appends msg unless the cap is reached
func (r *RunLog) AddError(msg string) {
	if len(r.Errors) >= MaxRunErrors {
		return
	}
	r.Errors = append(r.Errors, msg)
}

// AddFatal records the error that ended the run.
// When the list is full it replaces the last task error, so a failed log always names its cause.
func (r *RunLog) AddFatal(msg string) {
	if len(r.Errors) >= MaxRunErrors {
		r.Errors[MaxRunErrors-1] = msg
		return
	}
	r.Errors = append(r.Errors, msg)
}

// Finish moves the log to a terminal status and fills the totals
func (r *RunLog) Finish(status RunStatus, end time.Time) {
	r.Status = status
	r.EndTime = end
	r.TotalSucceeded = r.Stage2Success
	r.TotalFailed = r.Stage1Failed + r.Stage2Failed
}

// Duration returns end - start (zero while running)
func (r *RunLog) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
