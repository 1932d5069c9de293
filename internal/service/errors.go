package service

import "fmt"

type ErrRunQueueFull struct{}

func (e ErrRunQueueFull) Error() string {
	return "run queue is full"
}

func NewErrRunQueueFull() *ErrRunQueueFull {
	return &ErrRunQueueFull{}
}

type RunCancelError struct {
	Message string
}

func (rce RunCancelError) Error() string {
	return rce.Message
}

// StepTimeoutError marks a step that exceeded its own timeout. It is
// a plain failure: nothing in the pipeline retries automatically.
type StepTimeoutError struct {
	Step    string
	Seconds int64
}

func (e StepTimeoutError) Error() string {
	return fmt.Sprintf("step '%s' timed out after %d seconds", e.Step, e.Seconds)
}

// UploadError marks a failed upload to an external endpoint (coverage
// aggregator or package index), carrying the HTTP status line.
type UploadError struct {
	Endpoint string
	Status   string
}

func (e UploadError) Error() string {
	return fmt.Sprintf("upload to %s failed: %s", e.Endpoint, e.Status)
}
