package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies job failures
type ErrorCode string

const (
	ErrorInputRejected      ErrorCode = "INPUT_REJECTED"
	ErrorDecodeFailure      ErrorCode = "DECODE_FAILURE"
	ErrorRecognitionFailure ErrorCode = "RECOGNITION_FAILURE"
	ErrorRenderFailure      ErrorCode = "RENDER_FAILURE"
)

// JobError is the single failure reported for a job
type JobError struct {
	Code       ErrorCode
	Message    string
	JobID      string
	Generation uint64
	Timestamp  time.Time
	Details    map[string]interface{}
	Cause      error
}

func (e *JobError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *JobError) Unwrap() error {
	return e.Cause
}

// ToMap converts the error to a flat map for JSON responses and audit rows
func (e *JobError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}

// CodeOf returns the code of the first JobError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Code
	}
	return ""
}

func NewInputRejectedError(contentType string) *JobError {
	return &JobError{
		Code:      ErrorInputRejected,
		Message:   fmt.Sprintf("Unsupported content type: %s", contentType),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"content_type": contentType,
		},
	}
}

func NewDecodeFailureError(jobID string, generation uint64, cause error) *JobError {
	return &JobError{
		Code:       ErrorDecodeFailure,
		Message:    "Image could not be decoded",
		JobID:      jobID,
		Generation: generation,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}

func NewRecognitionFailureError(jobID string, generation uint64, engine string, cause error) *JobError {
	return &JobError{
		Code:       ErrorRecognitionFailure,
		Message:    fmt.Sprintf("OCR failed in engine: %s", engine),
		JobID:      jobID,
		Generation: generation,
		Timestamp:  time.Now(),
		Details: map[string]interface{}{
			"ocr_engine": engine,
		},
		Cause: cause,
	}
}

func NewRenderFailureError(jobID string, generation uint64, cause error) *JobError {
	return &JobError{
		Code:       ErrorRenderFailure,
		Message:    "Masked image could not be produced",
		JobID:      jobID,
		Generation: generation,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}
