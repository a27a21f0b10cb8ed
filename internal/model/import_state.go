package model

import (
	"fmt"
	"time"
)

type ImportStatus string

const (
	ImportNew        ImportStatus = "new"
	ImportProcessing ImportStatus = "processing"
	ImportFailed     ImportStatus = "failed"
	ImportCompleted  ImportStatus = "completed"
)

// ImportState 条目导入进度。字段是否有效取决于 Status:
//
//	new:        LastImportRequestedTime
//	processing: ImportStartedTime, LastSuccessfulImportTime(可空)
//	failed:     ErrorMessage, ImportFailedTime, LastSuccessfulImportTime(可空)
//	completed:  LastSuccessfulImportTime
//
// AttemptID 是当前导入租约,AttemptCount 是连续失败次数。
type ImportState struct {
	Status                   ImportStatus `gorm:"size:32;not null;index" json:"status"`
	ShouldFetch              bool         `json:"should_fetch"`
	LastImportRequestedTime  *time.Time   `json:"last_import_requested_time,omitempty"`
	ImportStartedTime        *time.Time   `json:"import_started_time,omitempty"`
	LastSuccessfulImportTime *time.Time   `json:"last_successful_import_time,omitempty"`
	ImportFailedTime         *time.Time   `json:"import_failed_time,omitempty"`
	ErrorMessage             string       `gorm:"type:text" json:"error_message,omitempty"`
	AttemptID                string       `gorm:"size:64" json:"attempt_id,omitempty"`
	AttemptCount             int          `json:"attempt_count"`
}

// NewImportState 新建条目时的初始状态
func NewImportState(now time.Time) ImportState {
	return ImportState{
		Status:                  ImportNew,
		ShouldFetch:             true,
		LastImportRequestedTime: &now,
	}
}

// CanStart 是否允许开始一次导入
func (s ImportState) CanStart() bool {
	switch s.Status {
	case ImportNew:
		return true
	case ImportFailed, ImportCompleted:
		return s.ShouldFetch
	case ImportProcessing:
		return false
	default:
		panic(fmt.Sprintf("unknown import status %q", s.Status))
	}
}

// Started 进入 processing。只允许从 new 或已重新排队的 failed/completed 进入。
func (s ImportState) Started(now time.Time, attemptID string) ImportState {
	if !s.CanStart() {
		panic(fmt.Sprintf("illegal import transition: %s(should_fetch=%t) -> processing", s.Status, s.ShouldFetch))
	}
	return ImportState{
		Status:                   ImportProcessing,
		ShouldFetch:              false,
		ImportStartedTime:        &now,
		LastSuccessfulImportTime: s.LastSuccessfulImportTime,
		AttemptID:                attemptID,
		AttemptCount:             s.AttemptCount,
	}
}

// Completed 导入成功
func (s ImportState) Completed(now time.Time) ImportState {
	s.mustBeProcessing(ImportCompleted)
	return ImportState{
		Status:                   ImportCompleted,
		ShouldFetch:              false,
		LastSuccessfulImportTime: &now,
		AttemptID:                s.AttemptID,
	}
}

// Failed 导入失败。不会自动重试,ShouldFetch 保持 false。
func (s ImportState) Failed(now time.Time, errorMessage string) ImportState {
	s.mustBeProcessing(ImportFailed)
	return ImportState{
		Status:                   ImportFailed,
		ShouldFetch:              false,
		ErrorMessage:             errorMessage,
		ImportFailedTime:         &now,
		LastSuccessfulImportTime: s.LastSuccessfulImportTime,
		AttemptID:                s.AttemptID,
		AttemptCount:             s.AttemptCount + 1,
	}
}

// ReimportRequested 重新排队,状态不变
func (s ImportState) ReimportRequested(now time.Time) ImportState {
	switch s.Status {
	case ImportFailed, ImportCompleted:
	case ImportNew, ImportProcessing:
		panic(fmt.Sprintf("illegal import transition: reimport requested from %s", s.Status))
	default:
		panic(fmt.Sprintf("unknown import status %q", s.Status))
	}
	s.ShouldFetch = true
	s.LastImportRequestedTime = &now
	return s
}

func (s ImportState) mustBeProcessing(to ImportStatus) {
	if s.Status != ImportProcessing {
		panic(fmt.Sprintf("illegal import transition: %s -> %s", s.Status, to))
	}
}

// ReimportTriggered 仅当 ShouldFetch 从 false 变为 true 时返回 true
func ReimportTriggered(before, after ImportState) bool {
	return !before.ShouldFetch && after.ShouldFetch
}
