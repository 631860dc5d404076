package encounter

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apc939/asistentehc/pkg/model"
)

// ErrNoActiveEncounter is returned when an operation requires an encounter
// but none has been started.
var ErrNoActiveEncounter = errors.New("encounter: no active encounter")

// ErrMissingPatientContext is returned when the patient alias or internal id
// is empty. Both are required before anything else may proceed.
var ErrMissingPatientContext = errors.New("encounter: patient alias and internal id are required")

// Manager owns the current encounter context. One encounter spans all
// recordings, uploads, notes and paraclinics until the next reset.
type Manager struct {
	mu      sync.Mutex
	current *model.EncounterContext
	logger  *zap.Logger
}

// NewManager creates an encounter Manager with no active encounter.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// Start begins a new encounter for the given patient context. The alias and
// internal id are free text; they are not scrubbed for identifying data.
func (m *Manager) Start(patientAlias, patientInternalID string) (*model.EncounterContext, error) {
	alias := strings.TrimSpace(patientAlias)
	internalID := strings.TrimSpace(patientInternalID)
	if alias == "" || internalID == "" {
		return nil, ErrMissingPatientContext
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = &model.EncounterContext{
		EncounterID:       uuid.New().String(),
		PatientAlias:      alias,
		PatientInternalID: internalID,
		StartedAt:         time.Now(),
	}

	m.logger.Info("encounter started",
		zap.String("encounter_id", m.current.EncounterID),
	)

	ctx := *m.current
	return &ctx, nil
}

// Current returns a copy of the active encounter context.
func (m *Manager) Current() (*model.EncounterContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, ErrNoActiveEncounter
	}

	ctx := *m.current
	return &ctx, nil
}

// Reset clears the active encounter. The next consultation must call Start
// again, which generates a fresh encounter id.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.logger.Info("encounter reset",
			zap.String("encounter_id", m.current.EncounterID),
		)
	}
	m.current = nil
}
