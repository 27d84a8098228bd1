package contracts

import (
	"errors"
	"fmt"
)

// ⭐ SSOT: 에러 분류는 여기서만 정의
//
// TaskError        태스크 단위 실패 (카운트만, 파이프라인 계속)
// EmptyResultError 최종 저장 단계에서 0건 (실행 실패)
// PersistenceError 배치 저장 실패 (배치 전체 폐기)
// ConfigError      작업 시작 전 설정 오류 (즉시 중단)

// ErrNoData is returned by reads that find no rows for the requested key
var ErrNoData = errors.New("no data")

// TaskError is one fetch task's captured failure
type TaskError struct {
	Key   string
	Stage string
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("ticker %s failed: %v", e.Key, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// EmptyResultError means a stage produced zero records where at least one was required
type EmptyResultError struct {
	Stage string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("%s: no records produced", e.Stage)
}

// PersistenceError means a whole store batch was rejected
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ConfigError is a configuration or argument problem detected before work starts
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsConfigError reports whether err wraps a ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
