package model

import (
	"time"
)

// Phase is the state-machine position derived from a persisted download state.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDownloading Phase = "downloading"
	PhasePaused      Phase = "paused"
	PhaseFailed      Phase = "failed"
	PhaseCompleted   Phase = "completed"
)

// DownloadState is the persisted progress of the artifact transfer for one scope.
type DownloadState struct {
	Filename    string     `json:"filename,omitempty"`
	Path        string     `json:"path,omitempty"`
	ProgressGB  float64    `json:"progress_gb"`
	TotalGB     float64    `json:"total_gb"`
	Paused      bool       `json:"paused"`
	Error       string     `json:"error,omitempty"`
	ResumeToken []byte     `json:"-"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FileRemoved bool       `json:"file_removed"`
}

// Completed reports whether the transfer finished successfully.
func (s DownloadState) Completed() bool {
	return s.CompletedAt != nil
}

// Resumable reports whether a suspended transfer can be continued.
func (s DownloadState) Resumable() bool {
	return s.Paused && len(s.ResumeToken) > 0
}

// Phase derives the state-machine position. A record that is neither paused nor
// completed but names a file is a transfer in flight, or one interrupted by a crash.
func (s DownloadState) Phase() Phase {
	switch {
	case s.Completed():
		return PhaseCompleted
	case s.Paused && s.Error != "":
		return PhaseFailed
	case s.Paused:
		return PhasePaused
	case s.Filename != "":
		return PhaseDownloading
	default:
		return PhaseIdle
	}
}

// Record is everything persisted for one scope: the descriptor and catalog version
// last associated with the file, plus the transfer state.
type Record struct {
	Descriptor     *Descriptor   `json:"descriptor,omitempty"`
	CatalogID      string        `json:"catalog_id,omitempty"`
	CatalogVersion string        `json:"catalog_version,omitempty"`
	Download       DownloadState `json:"download"`
}
