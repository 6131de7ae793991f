package formstage

import (
	"context"
	"fmt"

	"github.com/sasha-s/go-deadlock"

	"github.com/davidroman0O/formstage/store"
)

// SessionState is a step of the admin configuration workflow.
type SessionState string

const (
	// StateBrowsing shows the stage list; no stage is open.
	StateBrowsing SessionState = "browsing"
	// StateConfiguring has one stage open for field editing.
	StateConfiguring SessionState = "configuring_stage"
	// StatePreviewing renders the open stage's draft read-only.
	StatePreviewing SessionState = "previewing"
	// StateViewingVersions lists the open stage's published versions.
	StateViewingVersions SessionState = "viewing_versions"
)

// Session drives one administrator through configuring stages: open a stage, edit its
// draft, publish, browse versions, roll back, then save or cancel.
//
// Edits go to the engine's FieldStore draft for the open stage. Save commits the draft
// only if the category collection is still at the revision the session last read, so two
// sessions editing concurrently get a Conflict error instead of losing changes. A stage is
// configured by one session at a time; Configure on a stage held by another session fails
// with ErrConflict.
type Session struct {
	engine    *Engine
	id        uint64
	editMode  bool
	publisher string

	mu       deadlock.Mutex
	state    SessionState
	stageID  string
	baseRev  store.Revision
	counting bool
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithEditMode sets whether the session may change anything. The caller decides who gets
// edit mode; the engine trusts it.
func WithEditMode(enabled bool) SessionOption {
	return func(s *Session) {
		s.editMode = enabled
	}
}

// WithSessionPublisher sets the publisher identity recorded on versions published by the session
func WithSessionPublisher(name string) SessionOption {
	return func(s *Session) {
		s.publisher = name
	}
}

// NewSession starts a session in StateBrowsing with edit mode on.
func (e *Engine) NewSession(opts ...SessionOption) *Session {
	s := &Session{
		engine:   e,
		id:       e.env.sessions.Add(1),
		editMode: true,
		state:    StateBrowsing,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current workflow state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StageID returns the open stage, or "" while browsing.
func (s *Session) StageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stageID
}

// EditMode reports whether the session may change anything.
func (s *Session) EditMode() bool {
	return s.editMode
}

// Configure opens stageID for editing, loading its live fields into a fresh draft.
func (s *Session) Configure(ctx context.Context, stageID string) ([]FormField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require("configure", StateBrowsing); err != nil {
		return nil, err
	}
	if err := s.requireEdit("configure"); err != nil {
		return nil, err
	}

	rev, err := s.engine.Stages.Revision(ctx)
	if err != nil {
		return nil, err
	}
	fields, err := s.engine.Fields.claim(ctx, "configure", stageID, s.id)
	if err != nil {
		return nil, err
	}

	s.state = StateConfiguring
	s.stageID = stageID
	s.baseRev = rev
	if m := s.engine.env.metrics; m != nil {
		m.sessionOpened()
		s.counting = true
	}
	return fields, nil
}

// Fields returns the open stage's draft.
func (s *Session) Fields(ctx context.Context) ([]FormField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require("fields", StateConfiguring, StatePreviewing); err != nil {
		return nil, err
	}
	return s.engine.Fields.Fields(ctx, s.stageID)
}

// AddField appends a field of type t to the draft.
func (s *Session) AddField(ctx context.Context, t FieldType) (FormField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEditing(OpFieldAdded); err != nil {
		return FormField{}, err
	}
	return s.engine.Fields.AddField(ctx, s.stageID, t)
}

// UpdateField merges patch into a draft field.
func (s *Session) UpdateField(ctx context.Context, fieldID string, patch FieldPatch) (FormField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEditing(OpFieldUpdated); err != nil {
		return FormField{}, err
	}
	return s.engine.Fields.UpdateField(ctx, s.stageID, fieldID, patch)
}

// DeleteField removes a draft field.
func (s *Session) DeleteField(ctx context.Context, fieldID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEditing(OpFieldDeleted); err != nil {
		return err
	}
	return s.engine.Fields.DeleteField(ctx, s.stageID, fieldID)
}

// ReorderField moves a draft field by pointer position, see FieldStore.ReorderField.
func (s *Session) ReorderField(ctx context.Context, draggedID string, dropIndex int, pointerY float64, item Rect) ([]FormField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEditing(OpFieldReordered); err != nil {
		return nil, err
	}
	return s.engine.Fields.ReorderField(ctx, s.stageID, draggedID, dropIndex, pointerY, item)
}

// Preview switches to the read-only rendering of the draft and returns it.
func (s *Session) Preview(ctx context.Context) ([]FormField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require("preview", StateConfiguring); err != nil {
		return nil, err
	}
	fields, err := s.engine.Fields.Fields(ctx, s.stageID)
	if err != nil {
		return nil, err
	}
	s.state = StatePreviewing
	return fields, nil
}

// ClosePreview returns to StateConfiguring.
func (s *Session) ClosePreview() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require("close preview", StatePreviewing); err != nil {
		return err
	}
	s.state = StateConfiguring
	return nil
}

// ShowVersions switches to the version list of the open stage and returns it.
func (s *Session) ShowVersions(ctx context.Context) ([]FormVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require("show versions", StateConfiguring); err != nil {
		return nil, err
	}
	versions, err := s.engine.Versions.ListVersions(ctx, s.stageID)
	if err != nil {
		return nil, err
	}
	s.state = StateViewingVersions
	return versions, nil
}

// CloseVersions returns to StateConfiguring without rolling back.
func (s *Session) CloseVersions() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require("close versions", StateViewingVersions); err != nil {
		return err
	}
	s.state = StateConfiguring
	return nil
}

// Rollback loads versionID into the draft, makes it the active version and returns to
// StateConfiguring. Nothing reaches the stage's live form until Save.
func (s *Session) Rollback(ctx context.Context, versionID string) (FormVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require(OpFormRolledBack, StateViewingVersions); err != nil {
		return FormVersion{}, err
	}
	if err := s.requireEdit(OpFormRolledBack); err != nil {
		return FormVersion{}, err
	}

	version, err := s.engine.Versions.Rollback(ctx, s.stageID, versionID)
	if err != nil {
		return FormVersion{}, err
	}
	s.state = StateConfiguring
	return version, nil
}

// Publish snapshots the draft as a new active version and syncs it into the stage's live
// form. The session stays in StateConfiguring.
func (s *Session) Publish(ctx context.Context) (FormVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEditing(OpFormPublished); err != nil {
		return FormVersion{}, err
	}

	fields, err := s.engine.Fields.Fields(ctx, s.stageID)
	if err != nil {
		return FormVersion{}, err
	}
	version, rev, err := s.engine.Versions.publish(ctx, s.stageID, fields, s.publisher)
	if err != nil {
		return FormVersion{}, err
	}
	s.baseRev = rev
	return version, nil
}

// Save commits the draft into the stage and returns to StateBrowsing. When another session
// changed the categories since this one last read them, Save fails with ErrConflict and
// the draft stays open.
func (s *Session) Save(ctx context.Context) (Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireEditing("save"); err != nil {
		return Stage{}, err
	}

	fields, err := s.engine.Fields.Fields(ctx, s.stageID)
	if err != nil {
		return Stage{}, err
	}
	stage, _, err := s.engine.Stages.CommitFields(ctx, s.stageID, fields, s.baseRev)
	if err != nil {
		return Stage{}, err
	}

	s.close()
	return stage, nil
}

// Cancel discards the draft and returns to StateBrowsing. Nothing is written.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require("cancel", StateConfiguring); err != nil {
		return err
	}
	s.close()
	return nil
}

func (s *Session) close() {
	s.engine.Fields.release(s.stageID, s.id)
	s.state = StateBrowsing
	s.stageID = ""
	s.baseRev = store.NoRevision
	if s.counting {
		s.engine.env.metrics.sessionClosed()
		s.counting = false
	}
}

func (s *Session) require(op string, allowed ...SessionState) error {
	for _, state := range allowed {
		if s.state == state {
			return nil
		}
	}
	return &Error{
		Kind: KindInvalidState,
		Op:   op,
		Msg:  fmt.Sprintf("not allowed while %s", s.state),
	}
}

func (s *Session) requireEdit(op string) error {
	if !s.editMode {
		return &Error{Kind: KindReadOnly, Op: op}
	}
	return nil
}

func (s *Session) requireEditing(op string) error {
	if err := s.require(op, StateConfiguring); err != nil {
		return err
	}
	return s.requireEdit(op)
}
