package formstage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionConfigureAndSave(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	_, stages := seedStages(t, e, "Proposal")
	s := e.NewSession()

	assert.Equal(t, StateBrowsing, s.State())
	fields, err := s.Configure(ctx, stages[0].ID)
	require.NoError(t, err)
	assert.Empty(t, fields)
	assert.Equal(t, StateConfiguring, s.State())
	assert.Equal(t, stages[0].ID, s.StageID())

	_, err = s.Configure(ctx, stages[0].ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	name, err := s.AddField(ctx, FieldText)
	require.NoError(t, err)
	_, err = s.AddField(ctx, FieldEmail)
	require.NoError(t, err)
	_, err = s.UpdateField(ctx, name.ID, FieldPatch{Label: ptr("Full name"), Required: ptr(true)})
	require.NoError(t, err)

	saved, err := s.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Full name", "New email Field"}, fieldLabels(saved.Fields))
	assert.Equal(t, StateBrowsing, s.State())
	assert.Empty(t, s.StageID())
	assert.False(t, e.Fields.IsOpen(stages[0].ID))

	stored, err := e.Stages.Stage(ctx, stages[0].ID)
	require.NoError(t, err)
	assert.Equal(t, saved.Fields, stored.Fields)
}

func TestSessionCancelDiscards(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	_, stages := seedStages(t, e, "Proposal")
	s := e.NewSession()

	_, err := s.Configure(ctx, stages[0].ID)
	require.NoError(t, err)
	_, err = s.AddField(ctx, FieldText)
	require.NoError(t, err)

	require.NoError(t, s.Cancel())
	assert.Equal(t, StateBrowsing, s.State())

	stored, err := e.Stages.Stage(ctx, stages[0].ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Fields)

	assert.ErrorIs(t, s.Cancel(), ErrInvalidState)
}

func TestSessionPreview(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	_, stages := seedStages(t, e, "Proposal")
	s := e.NewSession()

	_, err := s.Preview(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = s.Configure(ctx, stages[0].ID)
	require.NoError(t, err)
	_, err = s.AddField(ctx, FieldCheckbox)
	require.NoError(t, err)

	preview, err := s.Preview(ctx)
	require.NoError(t, err)
	assert.Len(t, preview, 1)
	assert.Equal(t, StatePreviewing, s.State())

	fields, err := s.Fields(ctx)
	require.NoError(t, err)
	assert.Equal(t, preview, fields)

	_, err = s.AddField(ctx, FieldText)
	assert.ErrorIs(t, err, ErrInvalidState, "preview is read-only")
	_, err = s.Save(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, s.ClosePreview())
	assert.Equal(t, StateConfiguring, s.State())
	assert.ErrorIs(t, s.ClosePreview(), ErrInvalidState)
}

func TestSessionPublishStaysConfiguring(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	_, stages := seedStages(t, e, "Proposal")
	s := e.NewSession(WithSessionPublisher("alice"))

	_, err := s.Configure(ctx, stages[0].ID)
	require.NoError(t, err)

	_, err = s.Publish(ctx)
	assert.ErrorIs(t, err, ErrEmptyForm)
	assert.Equal(t, StateConfiguring, s.State())

	_, err = s.AddField(ctx, FieldNumber)
	require.NoError(t, err)
	v, err := s.Publish(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Version)
	assert.Equal(t, "alice", v.PublishedBy)
	assert.Equal(t, StateConfiguring, s.State())

	// Publishing moved the category revision; saving afterwards is not a conflict.
	_, err = s.AddField(ctx, FieldText)
	require.NoError(t, err)
	saved, err := s.Save(ctx)
	require.NoError(t, err)
	assert.Len(t, saved.Fields, 2)
}

func TestSessionVersionsAndRollback(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	_, stages := seedStages(t, e, "Proposal")
	stageID := stages[0].ID

	v1, err := e.Versions.Publish(ctx, stageID, []FormField{textField("f1", "One")}, "")
	require.NoError(t, err)
	_, err = e.Versions.Publish(ctx, stageID, []FormField{textField("f1", "One"), textField("f2", "Two")}, "")
	require.NoError(t, err)

	s := e.NewSession()
	_, err = s.Rollback(ctx, v1.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = s.Configure(ctx, stageID)
	require.NoError(t, err)

	versions, err := s.ShowVersions(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, StateViewingVersions, s.State())

	require.NoError(t, s.CloseVersions())
	assert.Equal(t, StateConfiguring, s.State())

	_, err = s.ShowVersions(ctx)
	require.NoError(t, err)
	rolled, err := s.Rollback(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rolled.Version)
	assert.Equal(t, StateConfiguring, s.State())

	draft, err := s.Fields(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"One"}, fieldLabels(draft))

	stored, err := e.Stages.Stage(ctx, stageID)
	require.NoError(t, err)
	assert.Len(t, stored.Fields, 2, "rollback alone does not touch the live form")

	_, err = s.Save(ctx)
	require.NoError(t, err)
	stored, err = e.Stages.Stage(ctx, stageID)
	require.NoError(t, err)
	assert.Equal(t, []string{"One"}, fieldLabels(stored.Fields))
}

func TestSessionReadOnly(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	_, stages := seedStages(t, e, "Proposal")

	s := e.NewSession(WithEditMode(false))
	assert.False(t, s.EditMode())

	_, err := s.Configure(ctx, stages[0].ID)
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.Equal(t, StateBrowsing, s.State())
}

func TestSessionReorderField(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	_, stages := seedStages(t, e, "Proposal")
	s := e.NewSession()

	_, err := s.Configure(ctx, stages[0].ID)
	require.NoError(t, err)
	a, err := s.AddField(ctx, FieldText)
	require.NoError(t, err)
	b, err := s.AddField(ctx, FieldLabel)
	require.NoError(t, err)

	out, err := s.ReorderField(ctx, b.ID, 0, 1, Rect{Top: 0, Height: 30})
	require.NoError(t, err)
	assert.Equal(t, b.ID, out[0].ID)
	assert.Equal(t, a.ID, out[1].ID)

	require.NoError(t, s.DeleteField(ctx, a.ID))
	fields, err := s.Fields(ctx)
	require.NoError(t, err)
	assert.Len(t, fields, 1)
}

func TestSessionsCannotShareAStage(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	_, stages := seedStages(t, e, "Proposal", "Procurement")
	stageID := stages[0].ID

	a := e.NewSession()
	b := e.NewSession()

	_, err := a.Configure(ctx, stageID)
	require.NoError(t, err)
	_, err = a.AddField(ctx, FieldText)
	require.NoError(t, err)

	_, err = b.Configure(ctx, stageID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, StateBrowsing, b.State())
	assert.ErrorIs(t, b.Cancel(), ErrInvalidState)

	_, err = e.Fields.Open(ctx, stageID)
	assert.ErrorIs(t, err, ErrConflict)
	e.Fields.Discard(stageID)
	assert.True(t, e.Fields.IsOpen(stageID), "a session's draft survives Discard")

	// Other stages stay available.
	_, err = b.Configure(ctx, stages[1].ID)
	require.NoError(t, err)
	require.NoError(t, b.Cancel())

	saved, err := a.Save(ctx)
	require.NoError(t, err)
	require.Len(t, saved.Fields, 1)

	_, err = b.Configure(ctx, stageID)
	require.NoError(t, err)
	fields, err := b.Fields(ctx)
	require.NoError(t, err)
	assert.Len(t, fields, 1)
	require.NoError(t, b.Cancel())
}

func TestSessionRollbackKeepsItsClaim(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	_, stages := seedStages(t, e, "Proposal")
	stageID := stages[0].ID

	a := e.NewSession()
	_, err := a.Configure(ctx, stageID)
	require.NoError(t, err)
	_, err = a.AddField(ctx, FieldText)
	require.NoError(t, err)
	v1, err := a.Publish(ctx)
	require.NoError(t, err)
	_, err = a.AddField(ctx, FieldEmail)
	require.NoError(t, err)
	_, err = a.Publish(ctx)
	require.NoError(t, err)

	_, err = a.ShowVersions(ctx)
	require.NoError(t, err)
	_, err = a.Rollback(ctx, v1.ID)
	require.NoError(t, err)

	b := e.NewSession()
	_, err = b.Configure(ctx, stageID)
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, a.Cancel())
	_, err = b.Configure(ctx, stageID)
	assert.NoError(t, err)
}
