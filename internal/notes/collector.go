package notes

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apc939/asistentehc/internal/storage"
	"github.com/apc939/asistentehc/pkg/model"
)

const configKey = "notes-config"

var (
	// ErrDuplicateTypeLabel is returned when a note type label already
	// exists, compared case-insensitively.
	ErrDuplicateTypeLabel = errors.New("notes: a note type with that label already exists")

	// ErrLastType is returned when removing a type would leave none.
	ErrLastType = errors.New("notes: at least one note type must exist")

	// ErrEmptyLabel is returned for blank type labels.
	ErrEmptyLabel = errors.New("notes: note type label cannot be empty")

	// ErrTypeNotFound is returned for unknown note type ids.
	ErrTypeNotFound = errors.New("notes: note type not found")

	// ErrNoteNotFound is returned for unknown note ids.
	ErrNoteNotFound = errors.New("notes: note not found")
)

// defaultTypes seeds the note-type list on first use.
var defaultTypes = []model.NoteType{
	{ID: "analysis", Label: "Análisis"},
	{ID: "physical_exam", Label: "Examen Físico"},
	{ID: "diagnosis", Label: "Diagnóstico"},
	{ID: "plan", Label: "Plan de Tratamiento"},
}

var typeIDPattern = regexp.MustCompile(`[^a-z0-9]+`)

// typeIDFromLabel derives an opaque id from a label: lowercase,
// non-alphanumeric runs collapsed to underscores, capped at 40 characters.
func typeIDFromLabel(label string) string {
	id := strings.Trim(typeIDPattern.ReplaceAllString(strings.ToLower(label), "_"), "_")
	if len(id) > 40 {
		id = id[:40]
	}
	if id == "" {
		id = fmt.Sprintf("note_%d", time.Now().UnixMilli())
	}
	return id
}

type typesConfig struct {
	Types []model.NoteType `json:"types"`
}

// Collector holds the in-memory ordered note list for the current encounter
// and the persisted note-type catalog.
type Collector struct {
	mu     sync.Mutex
	types  []model.NoteType
	notes  []model.Note
	store  storage.Store
	logger *zap.Logger
}

// NewCollector loads the note-type catalog from the store, seeding the
// default set on first use.
func NewCollector(store storage.Store, logger *zap.Logger) (*Collector, error) {
	c := &Collector{
		store:  store,
		logger: logger,
	}

	var cfg typesConfig
	err := store.Load(configKey, &cfg)
	switch {
	case err == nil && len(cfg.Types) > 0:
		c.types = cfg.Types
	case err == nil || errors.Is(err, storage.ErrNotFound):
		c.types = append([]model.NoteType(nil), defaultTypes...)
		if err := c.persistTypes(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("failed to load note types: %w", err)
	}

	return c, nil
}

func (c *Collector) persistTypes() error {
	if err := c.store.Save(configKey, typesConfig{Types: c.types}); err != nil {
		return fmt.Errorf("failed to persist note types: %w", err)
	}
	return nil
}

// Types returns the note-type catalog.
func (c *Collector) Types() []model.NoteType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.NoteType(nil), c.types...)
}

// AddType registers a new note type. Labels are unique case-insensitively.
func (c *Collector) AddType(label string) (*model.NoteType, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, ErrEmptyLabel
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.types {
		if strings.EqualFold(t.Label, label) {
			return nil, ErrDuplicateTypeLabel
		}
	}

	nt := model.NoteType{ID: typeIDFromLabel(label), Label: label}
	c.types = append(c.types, nt)
	if err := c.persistTypes(); err != nil {
		return nil, err
	}

	c.logger.Info("note type added", zap.String("type_id", nt.ID))
	return &nt, nil
}

// UpdateType renames an existing note type.
func (c *Collector) UpdateType(id, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return ErrEmptyLabel
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.types {
		if t.ID != id && strings.EqualFold(t.Label, label) {
			return ErrDuplicateTypeLabel
		}
	}

	for i := range c.types {
		if c.types[i].ID == id {
			c.types[i].Label = label
			return c.persistTypes()
		}
	}
	return ErrTypeNotFound
}

// RemoveType deletes a note type. The last remaining type cannot be removed.
func (c *Collector) RemoveType(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.types) <= 1 {
		return ErrLastType
	}

	for i := range c.types {
		if c.types[i].ID == id {
			c.types = append(c.types[:i], c.types[i+1:]...)
			return c.persistTypes()
		}
	}
	return ErrTypeNotFound
}

// ResetTypes restores the default note-type catalog.
func (c *Collector) ResetTypes() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.types = append([]model.NoteType(nil), defaultTypes...)
	return c.persistTypes()
}

// Add creates a new note of the given type with the given content.
func (c *Collector) Add(typeID, content string) (*model.Note, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.typeExistsLocked(typeID) {
		return nil, ErrTypeNotFound
	}

	note := model.Note{
		ID:        uuid.New().String(),
		TypeID:    typeID,
		Content:   content,
		UpdatedAt: time.Now(),
	}
	c.notes = append(c.notes, note)
	return &note, nil
}

// Update changes a note's content and/or type.
func (c *Collector) Update(id, typeID, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if typeID != "" && !c.typeExistsLocked(typeID) {
		return ErrTypeNotFound
	}

	for i := range c.notes {
		if c.notes[i].ID == id {
			if typeID != "" {
				c.notes[i].TypeID = typeID
			}
			c.notes[i].Content = content
			c.notes[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNoteNotFound
}

// Remove deletes a note.
func (c *Collector) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.notes {
		if c.notes[i].ID == id {
			c.notes = append(c.notes[:i], c.notes[i+1:]...)
			return nil
		}
	}
	return ErrNoteNotFound
}

// All returns the ordered note list for the current encounter.
func (c *Collector) All() []model.Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Note(nil), c.notes...)
}

// Snapshot returns the delivery-time view: only notes with non-empty trimmed
// content, each carrying its resolved type label.
func (c *Collector) Snapshot() []model.NoteSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	labels := make(map[string]string, len(c.types))
	for _, t := range c.types {
		labels[t.ID] = t.Label
	}

	var out []model.NoteSnapshot
	for _, n := range c.notes {
		content := strings.TrimSpace(n.Content)
		if content == "" {
			continue
		}
		out = append(out, model.NoteSnapshot{
			ID:        n.ID,
			TypeID:    n.TypeID,
			TypeLabel: labels[n.TypeID],
			Content:   content,
			UpdatedAt: n.UpdatedAt,
		})
	}
	return out
}

// Clear discards all notes. Called on encounter reset; the type catalog
// survives across encounters.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = nil
}

func (c *Collector) typeExistsLocked(typeID string) bool {
	for _, t := range c.types {
		if t.ID == typeID {
			return true
		}
	}
	return false
}
