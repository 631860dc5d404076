package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/apc939/asistentehc/internal/capture"
	"github.com/apc939/asistentehc/internal/encounter"
	"github.com/apc939/asistentehc/internal/notes"
	"github.com/apc939/asistentehc/internal/paraclinic"
	"github.com/apc939/asistentehc/internal/transcribe"
	"github.com/apc939/asistentehc/internal/webhook"
	"github.com/apc939/asistentehc/pkg/model"
)

// ErrNoAudio is returned when a delivery is requested with neither a stopped
// recording nor an accepted upload.
var ErrNoAudio = errors.New("service: no audio to deliver")

// Recorder is the capture state machine surface the service drives.
type Recorder interface {
	Start(ctx context.Context, constraints capture.Constraints) error
	TogglePause() error
	Stop(ctx context.Context) (*model.AudioArtifact, error)
	Reset()
	Session() model.RecordingSession
	Artifact() *model.AudioArtifact
}

// Transcriber turns audio into redacted text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (*model.TranscriptionResult, error)
}

// Deliverer posts consultation payloads to the configured webhook.
type Deliverer interface {
	Deliver(ctx context.Context, payload webhook.Payload, manual bool) error
}

// UploadValidator checks externally supplied audio files.
type UploadValidator interface {
	Validate(filename string, declaredType string, data []byte) (*model.UploadedAudio, error)
}

// DocumentUploader posts paraclinic document batches for analysis.
type DocumentUploader interface {
	Upload(ctx context.Context, images []paraclinic.Image, meta paraclinic.Metadata) (*model.ParaclinicAnalysisResult, error)
}

// ConsultationService coordinates one consultation: the encounter context,
// audio capture or upload, notes, transcription and delivery. Every capture
// and delivery operation requires an active encounter.
type ConsultationService struct {
	recorder    Recorder
	validator   UploadValidator
	transcriber Transcriber
	sender      Deliverer
	documents   DocumentUploader
	encounters  *encounter.Manager
	notes       *notes.Collector
	logger      *zap.Logger

	autoResetGrace time.Duration
	afterFunc      func(d time.Duration, f func()) *time.Timer

	mu      sync.Mutex
	pending *model.UploadedAudio
}

// NewConsultationService creates the service with all its collaborators.
func NewConsultationService(
	recorder Recorder,
	validator UploadValidator,
	transcriber Transcriber,
	sender Deliverer,
	documents DocumentUploader,
	encounters *encounter.Manager,
	noteCollector *notes.Collector,
	autoResetGrace time.Duration,
	logger *zap.Logger,
) (*ConsultationService, error) {
	if recorder == nil || validator == nil || transcriber == nil || sender == nil ||
		documents == nil || encounters == nil || noteCollector == nil {
		return nil, fmt.Errorf("all consultation service dependencies are required")
	}

	return &ConsultationService{
		recorder:       recorder,
		validator:      validator,
		transcriber:    transcriber,
		sender:         sender,
		documents:      documents,
		encounters:     encounters,
		notes:          noteCollector,
		autoResetGrace: autoResetGrace,
		afterFunc:      time.AfterFunc,
		logger:         logger,
	}, nil
}

// StartEncounter begins a new consultation and clears any session state left
// from the previous one.
func (s *ConsultationService) StartEncounter(patientAlias, patientInternalID string) (*model.EncounterContext, error) {
	ec, err := s.encounters.Start(patientAlias, patientInternalID)
	if err != nil {
		return nil, err
	}

	s.recorder.Reset()
	s.notes.Clear()
	s.clearPending()

	s.logger.Info("encounter started", zap.String("encounter_id", ec.EncounterID))
	return ec, nil
}

// EndEncounter closes the current consultation and discards its audio and
// notes.
func (s *ConsultationService) EndEncounter() {
	s.encounters.Reset()
	s.recorder.Reset()
	s.notes.Clear()
	s.clearPending()
	s.logger.Info("encounter ended")
}

// CurrentEncounter returns the active encounter context.
func (s *ConsultationService) CurrentEncounter() (*model.EncounterContext, error) {
	return s.encounters.Current()
}

// StartRecording begins audio capture for the active encounter. A recording
// replaces any previously accepted upload.
func (s *ConsultationService) StartRecording(ctx context.Context) error {
	if _, err := s.encounters.Current(); err != nil {
		return err
	}

	s.clearPending()
	return s.recorder.Start(ctx, capture.DefaultConstraints())
}

// TogglePause pauses or resumes the running recording.
func (s *ConsultationService) TogglePause() error {
	return s.recorder.TogglePause()
}

// StopRecording finalizes the recording and returns the artifact.
func (s *ConsultationService) StopRecording(ctx context.Context) (*model.AudioArtifact, error) {
	return s.recorder.Stop(ctx)
}

// ResetRecording discards the capture session without delivering.
func (s *ConsultationService) ResetRecording() {
	s.recorder.Reset()
}

// RecordingSession reports the capture session snapshot.
func (s *ConsultationService) RecordingSession() model.RecordingSession {
	return s.recorder.Session()
}

// AcceptUpload validates an externally supplied audio file and holds it as
// the consultation's audio. An accepted upload replaces any stopped
// recording.
func (s *ConsultationService) AcceptUpload(filename, declaredType string, data []byte) (*model.UploadedAudio, error) {
	if _, err := s.encounters.Current(); err != nil {
		return nil, err
	}

	uploaded, err := s.validator.Validate(filename, declaredType, data)
	if err != nil {
		return nil, err
	}

	s.recorder.Reset()

	s.mu.Lock()
	s.pending = uploaded
	s.mu.Unlock()

	return uploaded, nil
}

// PendingUpload returns the accepted upload, if any.
func (s *ConsultationService) PendingUpload() *model.UploadedAudio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// DiscardUpload drops the accepted upload without delivering it.
func (s *ConsultationService) DiscardUpload() {
	s.clearPending()
}

// TranscribeCurrent runs transcription on the consultation audio without
// delivering anything.
func (s *ConsultationService) TranscribeCurrent(ctx context.Context) (*model.TranscriptionResult, error) {
	if _, err := s.encounters.Current(); err != nil {
		return nil, err
	}

	audio, _, _, err := s.consultationAudio()
	if err != nil {
		return nil, err
	}
	return s.transcriber.Transcribe(ctx, audio)
}

// Send delivers the consultation: transcript when transcription is active,
// base64 audio otherwise, plus the non-empty notes. Preconditions are
// checked in a fixed order so the caller always sees the most actionable
// failure: encounter, then audio, then the delivery gates.
//
// After a successful delivery a recorded session resets automatically after
// a short grace period; an uploaded file is discarded immediately.
func (s *ConsultationService) Send(ctx context.Context, manual bool) error {
	return s.send(ctx, manual, false)
}

// SendAudio delivers the base64 audio without attempting transcription, for
// endpoints still consuming the pre-transcription payload.
func (s *ConsultationService) SendAudio(ctx context.Context, manual bool) error {
	return s.send(ctx, manual, true)
}

func (s *ConsultationService) send(ctx context.Context, manual, legacyAudio bool) error {
	ec, err := s.encounters.Current()
	if err != nil {
		return err
	}

	audio, duration, method, err := s.consultationAudio()
	if err != nil {
		return err
	}

	payload := webhook.Payload{
		DurationSeconds: duration,
		Timestamp:       time.Now(),
		EncounterID:     ec.EncounterID,
		CaptureMethod:   method,
		Notes:           s.notes.Snapshot(),
	}

	if legacyAudio {
		payload.AudioData = base64.StdEncoding.EncodeToString(audio)
	} else {
		result, err := s.transcriber.Transcribe(ctx, audio)
		switch {
		case err == nil:
			payload.Transcript = result.Text
		case errors.Is(err, transcribe.ErrNotConfigured),
			errors.Is(err, transcribe.ErrNotVerified),
			errors.Is(err, transcribe.ErrNotEnabled):
			// Transcription is off; deliver the audio itself.
			payload.AudioData = base64.StdEncoding.EncodeToString(audio)
		default:
			return err
		}
	}

	if err := s.sender.Deliver(ctx, payload, manual); err != nil {
		return err
	}

	switch method {
	case model.CaptureMethodUploaded:
		s.clearPending()
	case model.CaptureMethodRecorded:
		s.afterFunc(s.autoResetGrace, s.recorder.Reset)
	}

	return nil
}

// consultationAudio picks the audio to deliver. A stopped recording wins
// over an accepted upload.
func (s *ConsultationService) consultationAudio() ([]byte, float64, model.CaptureMethod, error) {
	if artifact := s.recorder.Artifact(); artifact != nil {
		return artifact.Data, artifact.DurationSeconds, model.CaptureMethodRecorded, nil
	}

	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()

	if pending != nil {
		return pending.Data, pending.EstimatedDurationSeconds, model.CaptureMethodUploaded, nil
	}
	return nil, 0, "", ErrNoAudio
}

// UploadParaclinics posts document images for analysis, tagged with the
// active encounter.
func (s *ConsultationService) UploadParaclinics(ctx context.Context, images []paraclinic.Image) (*model.ParaclinicAnalysisResult, error) {
	ec, err := s.encounters.Current()
	if err != nil {
		return nil, err
	}

	return s.documents.Upload(ctx, images, paraclinic.Metadata{
		EncounterID:       ec.EncounterID,
		PatientAlias:      ec.PatientAlias,
		PatientInternalID: ec.PatientInternalID,
	})
}

func (s *ConsultationService) clearPending() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}
