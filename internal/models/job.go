package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus is the lifecycle state of a submitted job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobTimedOut  JobStatus = "timed_out"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobTimedOut, JobCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobRunning, JobSucceeded, JobFailed, JobTimedOut, JobCancelled:
		return true
	}
	return false
}

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobFinished = errors.New("job already finished")
)

// EnvMap is extra environment for the job command, stored as JSONB.
type EnvMap map[string]string

// Value implements driver.Valuer for database storage
func (m EnvMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for database retrieval
func (m *EnvMap) Scan(value interface{}) error {
	if value == nil {
		*m = make(EnvMap)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, m)
}

// JobRequest is the submission payload. Immutable once submitted.
type JobRequest struct {
	Name       string `json:"name,omitempty"`
	Region     string `json:"region,omitempty"`
	JobType    string `json:"job_type,omitempty"`
	SourceRef  string `json:"source_ref" binding:"required"`
	WorkDir    string `json:"work_dir,omitempty"`
	RemoteURL  string `json:"remote_url,omitempty"`
	Command    string `json:"command" binding:"required"`
	Env        EnvMap `json:"env,omitempty"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`
}

// SubmitResponse is returned when a job is accepted.
type SubmitResponse struct {
	JobID  string    `json:"job_id"`
	Queue  string    `json:"queue"`
	Status JobStatus `json:"status"`
}

// Job is the server-side record of one submission.
type Job struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	Region     string     `json:"region" db:"region"`
	JobType    string     `json:"job_type" db:"job_type"`
	SourceRef  string     `json:"source_ref" db:"source_ref"`
	WorkDir    string     `json:"work_dir" db:"work_dir"`
	RemoteURL  string     `json:"remote_url" db:"remote_url"`
	Command    string     `json:"command" db:"command"`
	Env        EnvMap     `json:"env,omitempty" db:"env"`
	Queue      string     `json:"queue" db:"queue"`
	Status     JobStatus  `json:"status" db:"status"`
	ExitCode   *int       `json:"exit_code,omitempty" db:"exit_code"`
	Error      string     `json:"error,omitempty" db:"error_message"`
	Attempts   int        `json:"attempts" db:"attempts"`
	WorkerID   string     `json:"worker_id,omitempty" db:"worker_id"`
	LogKey     string     `json:"log_key,omitempty" db:"log_key"`
	TimeoutSec int        `json:"timeout_sec" db:"timeout_sec"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// Event types carried on the Pub/Sub channel.
const (
	EventStatus = "status"
	EventLog    = "log"
)

// JobEvent is one message on the events channel: a status transition or a
// single log line. Workers publish them; the persister and the WebSocket hub
// consume them.
type JobEvent struct {
	Type     string    `json:"type"`
	JobID    string    `json:"job_id"`
	Status   JobStatus `json:"status,omitempty"`
	WorkerID string    `json:"worker_id,omitempty"`
	Attempt  int       `json:"attempt,omitempty"`
	ExitCode *int      `json:"exit_code,omitempty"`
	Error    string    `json:"error,omitempty"`
	LogKey   string    `json:"log_key,omitempty"`
	Stream   string    `json:"stream,omitempty"`
	Line     string    `json:"line,omitempty"`
	Seq      int64     `json:"seq,omitempty"`
	At       time.Time `json:"at"`
}

// Log streams.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)
