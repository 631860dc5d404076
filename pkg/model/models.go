package model

import "time"

// RecordingState represents the lifecycle state of a capture session
type RecordingState string

const (
	RecordingStateIdle      RecordingState = "idle"
	RecordingStateRecording RecordingState = "recording"
	RecordingStatePaused    RecordingState = "paused"
	RecordingStateStopped   RecordingState = "stopped"
)

// RecordingSession is a snapshot of the capture state machine
type RecordingSession struct {
	State          RecordingState `json:"state"`
	ElapsedSeconds int            `json:"elapsed_seconds"`
	MimeType       string         `json:"mime_type,omitempty"`
	HasArtifact    bool           `json:"has_artifact"`
	Error          string         `json:"error,omitempty"`
}

// AudioArtifact is the finalized, immutable audio produced by a stopped
// recording or an accepted upload
type AudioArtifact struct {
	Data            []byte    `json:"-"`
	MimeType        string    `json:"mime_type"`
	DurationSeconds float64   `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

// CaptureMethod tags how an audio artifact was produced
type CaptureMethod string

const (
	CaptureMethodRecorded CaptureMethod = "recorded"
	CaptureMethodUploaded CaptureMethod = "uploaded"
)

// UploadedAudio is an externally supplied audio file that passed validation
type UploadedAudio struct {
	Filename                 string    `json:"filename"`
	Size                     int64     `json:"size"`
	MimeType                 string    `json:"mime_type"`
	Data                     []byte    `json:"-"`
	EstimatedDurationSeconds float64   `json:"estimated_duration_seconds"`
	AcceptedAt               time.Time `json:"accepted_at"`
}

// NoteType is a user-configurable category for clinical notes
type NoteType struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Note is one free-text clinical note attached to the current encounter
type Note struct {
	ID        string    `json:"id"`
	TypeID    string    `json:"type_id"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteSnapshot is the delivery-time view of a note, carrying the resolved
// type label so the webhook payload is self-describing
type NoteSnapshot struct {
	ID        string    `json:"id"`
	TypeID    string    `json:"type_id"`
	TypeLabel string    `json:"type_label"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EncounterContext identifies one clinical consultation. Alias and internal
// id are free text; UI copy discourages real identifying data but nothing is
// enforced here.
type EncounterContext struct {
	EncounterID       string    `json:"encounter_id"`
	PatientAlias      string    `json:"patient_alias"`
	PatientInternalID string    `json:"patient_internal_id"`
	StartedAt         time.Time `json:"started_at"`
}

// IntegrationConfig is the shared shape of the three external-integration
// configurations. Enabled may only be true while IsVerified is true; any
// mutation of Endpoint or Credential clears IsVerified.
type IntegrationConfig struct {
	Endpoint     string     `json:"endpoint,omitempty"`
	Credential   string     `json:"credential,omitempty"`
	Enabled      bool       `json:"enabled"`
	IsVerified   bool       `json:"is_verified"`
	LastTestedAt *time.Time `json:"last_tested_at,omitempty"`
}

// DeliveryStatus is the outcome of one webhook delivery attempt
type DeliveryStatus string

const (
	DeliveryStatusSuccess DeliveryStatus = "success"
	DeliveryStatusError   DeliveryStatus = "error"
)

// DeliveryLogEntry records one delivery attempt. Entries live only in
// volatile memory; they are never persisted.
type DeliveryLogEntry struct {
	ID              string         `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	DurationSeconds float64        `json:"duration_seconds"`
	Status          DeliveryStatus `json:"status"`
	Message         string         `json:"message"`
}

// TranscriptionResult is the provider's completed transcription
type TranscriptionResult struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
}

// ParaclinicAnalysisResult is the parsed summary returned by the paraclinic
// analysis webhook
type ParaclinicAnalysisResult struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}
