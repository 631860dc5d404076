package encounter

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestManager_StartRequiresPatientContext(t *testing.T) {
	m := NewManager(zap.NewNop())

	tests := []struct {
		name       string
		alias      string
		internalID string
		wantErr    bool
	}{
		{"both present", "Paciente-A", "caso-1", false},
		{"missing alias", "", "caso-1", true},
		{"missing internal id", "Paciente-A", "", true},
		{"whitespace only", "   ", "\t", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, err := m.Start(tt.alias, tt.internalID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Start() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrMissingPatientContext) {
					t.Errorf("Start() error = %v, want ErrMissingPatientContext", err)
				}
				return
			}
			if ctx.EncounterID == "" {
				t.Error("Start() returned empty encounter id")
			}
		})
	}
}

func TestManager_ResetRegeneratesID(t *testing.T) {
	m := NewManager(zap.NewNop())

	first, err := m.Start("Paciente-A", "caso-1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	m.Reset()

	if _, err := m.Current(); !errors.Is(err, ErrNoActiveEncounter) {
		t.Errorf("Current() after Reset() error = %v, want ErrNoActiveEncounter", err)
	}

	second, err := m.Start("Paciente-A", "caso-1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if first.EncounterID == second.EncounterID {
		t.Error("new consultation should generate a fresh encounter id")
	}
}

func TestManager_CurrentReturnsCopy(t *testing.T) {
	m := NewManager(zap.NewNop())

	if _, err := m.Start("Paciente-A", "caso-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, err := m.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}

	ctx.PatientAlias = "mutated"

	again, _ := m.Current()
	if again.PatientAlias != "Paciente-A" {
		t.Error("Current() must return a copy, not the internal context")
	}
}
