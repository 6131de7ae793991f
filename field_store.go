package formstage

import (
	"context"
	"fmt"

	"github.com/sasha-s/go-deadlock"
)

// FieldPatch is a partial update of a FormField. Nil members are left unchanged.
type FieldPatch struct {
	Type        *FieldType
	Label       *string
	Placeholder *string
	Required    *bool
	// Options replaces the option list when non-nil. An empty non-nil slice clears it.
	Options    []string
	Validation *Validation
	// ClearValidation removes the validation bounds. It wins over Validation.
	ClearValidation bool
}

type draft struct {
	categoryID string
	fields     []FormField
	// owner is the Session holding the draft, 0 for drafts opened through the FieldStore.
	owner uint64
}

// FieldStore holds the editable field list of every stage being configured. Drafts live in
// memory; they reach storage through StageStore.CommitFields or VersionStore.Publish.
// Editing a stage without an open draft opens one from the stage's live fields.
type FieldStore struct {
	env    *env
	stages *StageStore

	mu     deadlock.Mutex
	drafts map[string]*draft
}

// Open loads the stage's live fields into a fresh draft, replacing any existing draft.
// It fails with ErrConflict while a Session is configuring the stage.
func (f *FieldStore) Open(ctx context.Context, stageID string) ([]FormField, error) {
	return f.claim(ctx, "open fields", stageID, 0)
}

// claim opens a fresh draft for owner. A draft held by a different session is left alone
// and reported as a conflict.
func (f *FieldStore) claim(ctx context.Context, op, stageID string, owner uint64) ([]FormField, error) {
	stage, categoryID, err := f.stages.Locate(ctx, stageID)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.drafts[stageID]; ok && d.owner != 0 && d.owner != owner {
		return nil, &Error{
			Kind:     KindConflict,
			Op:       op,
			Resource: "stage",
			ID:       stageID,
			Msg:      fmt.Sprintf("stage %q is being configured by another session", stageID),
		}
	}
	f.drafts[stageID] = &draft{categoryID: categoryID, fields: CloneFields(stage.Fields), owner: owner}
	return CloneFields(stage.Fields), nil
}

// release drops the stage's draft if owner still holds it.
func (f *FieldStore) release(stageID string, owner uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.drafts[stageID]; ok && d.owner == owner {
		delete(f.drafts, stageID)
	}
}

// IsOpen reports whether a draft exists for the stage.
func (f *FieldStore) IsOpen(stageID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.drafts[stageID]
	return ok
}

// Fields returns a copy of the stage's draft.
func (f *FieldStore) Fields(ctx context.Context, stageID string) ([]FormField, error) {
	if err := f.ensureOpen(ctx, stageID); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[stageID]
	if !ok {
		return nil, notFound("fields", "draft", stageID)
	}
	return CloneFields(d.fields), nil
}

// Replace overwrites the stage's draft with fields.
func (f *FieldStore) Replace(ctx context.Context, stageID string, fields []FormField) error {
	if err := validateFields("replace fields", fields); err != nil {
		return err
	}
	if err := f.ensureOpen(ctx, stageID); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[stageID]
	if !ok {
		return notFound("replace fields", "draft", stageID)
	}
	d.fields = CloneFields(fields)
	return nil
}

// Discard drops the stage's draft without persisting it. Drafts held by a Session are only
// dropped when that session saves or cancels.
func (f *FieldStore) Discard(stageID string) {
	f.release(stageID, 0)
}

// AddField appends a field of type t with type-specific defaults.
func (f *FieldStore) AddField(ctx context.Context, stageID string, t FieldType) (FormField, error) {
	if !t.Valid() {
		return FormField{}, validationFailed(OpFieldAdded, fmt.Sprintf("unknown field type %q", t))
	}

	var added FormField
	err := f.edit(ctx, OpFieldAdded, stageID, func(op *Operation, fields []FormField) ([]FormField, bool, error) {
		added = NewField(f.env.newID(PrefixFieldID), t)
		op.ResourceID = added.ID
		return append(fields, added), true, nil
	})
	if err != nil {
		return FormField{}, err
	}
	return added.Clone(), nil
}

// UpdateField merges patch into the field with id fieldID.
func (f *FieldStore) UpdateField(ctx context.Context, stageID, fieldID string, patch FieldPatch) (FormField, error) {
	var updated FormField
	err := f.edit(ctx, OpFieldUpdated, stageID, func(op *Operation, fields []FormField) ([]FormField, bool, error) {
		op.ResourceID = fieldID
		i := findField(fields, fieldID)
		if i < 0 {
			return nil, false, notFound(OpFieldUpdated, "field", fieldID)
		}

		next := applyPatch(fields[i], patch)
		if err := validateField(OpFieldUpdated, next); err != nil {
			return nil, false, err
		}
		fields[i] = next
		updated = next.Clone()
		return fields, true, nil
	})
	return updated, err
}

// DeleteField removes the field with id fieldID.
func (f *FieldStore) DeleteField(ctx context.Context, stageID, fieldID string) error {
	return f.edit(ctx, OpFieldDeleted, stageID, func(op *Operation, fields []FormField) ([]FormField, bool, error) {
		op.ResourceID = fieldID
		i := findField(fields, fieldID)
		if i < 0 {
			return nil, false, notFound(OpFieldDeleted, "field", fieldID)
		}
		return append(fields[:i], fields[i+1:]...), true, nil
	})
}

// ReorderField drops the dragged field over the item at dropIndex. pointerY and item are in the
// same coordinate space; a pointer above the item's midpoint means "insert above".
func (f *FieldStore) ReorderField(ctx context.Context, stageID, draggedID string, dropIndex int, pointerY float64, item Rect) ([]FormField, error) {
	return f.Drop(ctx, stageID, draggedID, dropIndex, PointerAboveMidpoint(pointerY, item))
}

// Drop moves the dragged field relative to the item at dropIndex. above selects the upper
// half of that item. Dropping a field onto itself changes nothing.
func (f *FieldStore) Drop(ctx context.Context, stageID, draggedID string, dropIndex int, above bool) ([]FormField, error) {
	var result []FormField
	err := f.edit(ctx, OpFieldReordered, stageID, func(op *Operation, fields []FormField) ([]FormField, bool, error) {
		op.ResourceID = draggedID
		source := findField(fields, draggedID)
		if source < 0 {
			return nil, false, notFound(OpFieldReordered, "field", draggedID)
		}
		if dropIndex == source {
			result = CloneFields(fields)
			return fields, false, nil
		}

		target := ResolveInsertionIndex(source, dropIndex, above)
		reordered := Relocate(fields, source, target)
		result = CloneFields(reordered)
		return reordered, true, nil
	})
	return result, err
}

// NewField builds a field of type t with the defaults used by AddField.
func NewField(id string, t FieldType) FormField {
	field := FormField{ID: id, Type: t}
	switch t {
	case FieldLabel:
		field.Label = "New Label"
	case FieldButton:
		field.Label = "Submit"
	default:
		field.Label = fmt.Sprintf("New %s Field", t)
		field.Placeholder = fmt.Sprintf("Enter %s", t)
	}
	if t.HasOptions() {
		field.Options = defaultOptions()
	}
	return field
}

func defaultOptions() []string {
	return []string{"Option 1", "Option 2"}
}

func applyPatch(field FormField, patch FieldPatch) FormField {
	next := field.Clone()
	if patch.Type != nil {
		next.Type = *patch.Type
	}
	if patch.Label != nil {
		next.Label = *patch.Label
	}
	if patch.Placeholder != nil {
		next.Placeholder = *patch.Placeholder
	}
	if patch.Required != nil {
		next.Required = *patch.Required
	}
	if patch.Options != nil {
		next.Options = append([]string{}, patch.Options...)
	}
	if patch.Validation != nil {
		v := FormField{Validation: patch.Validation}.Clone().Validation
		next.Validation = v
	}
	if patch.ClearValidation {
		next.Validation = nil
	}

	if !next.Type.IsInput() {
		next.Required = false
	}
	if next.Type.HasOptions() && len(next.Options) == 0 {
		next.Options = defaultOptions()
	}
	return next
}

func findField(fields []FormField, fieldID string) int {
	for i, field := range fields {
		if field.ID == fieldID {
			return i
		}
	}
	return -1
}

// edit runs fn on the stage's draft inside the middleware chain. fn returns the new list and
// whether it differs from the old one.
func (f *FieldStore) edit(ctx context.Context, name, stageID string, fn func(op *Operation, fields []FormField) ([]FormField, bool, error)) error {
	return f.env.run(ctx, name, func(ctx context.Context, op *Operation) error {
		if err := f.ensureOpen(ctx, stageID); err != nil {
			return err
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		d, ok := f.drafts[stageID]
		if !ok {
			return notFound(name, "draft", stageID)
		}
		op.CategoryID = d.categoryID

		next, changed, err := fn(op, CloneFields(d.fields))
		if err != nil {
			return err
		}
		if !changed {
			op.NoOp = true
			return nil
		}
		d.fields = next
		return nil
	})
}

func (f *FieldStore) ensureOpen(ctx context.Context, stageID string) error {
	if f.IsOpen(stageID) {
		return nil
	}

	stage, categoryID, err := f.stages.Locate(ctx, stageID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.drafts[stageID]; !ok {
		f.drafts[stageID] = &draft{categoryID: categoryID, fields: CloneFields(stage.Fields)}
	}
	return nil
}

// load replaces the contents of the stage's draft with a copy of fields, keeping its owner.
func (f *FieldStore) load(stageID, categoryID string, fields []FormField) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var owner uint64
	if d, ok := f.drafts[stageID]; ok {
		owner = d.owner
	}
	f.drafts[stageID] = &draft{categoryID: categoryID, fields: CloneFields(fields), owner: owner}
}
