package formstage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/davidroman0O/formstage/store"
)

// StageStore owns the project categories and the ordered stages of each.
// Every mutation loads the category collection, applies the change, renumbers the
// affected stages and saves with the revision it loaded.
type StageStore struct {
	env *env
}

// ListCategories returns every category with its stages sorted by order.
func (s *StageStore) ListCategories(ctx context.Context) ([]ProjectCategory, error) {
	s.env.mu.Lock()
	defer s.env.mu.Unlock()

	cats, _, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ProjectCategory, len(cats))
	for i, c := range cats {
		out[i] = c.Clone()
	}
	return out, nil
}

// Category returns one category by id.
func (s *StageStore) Category(ctx context.Context, categoryID string) (ProjectCategory, error) {
	s.env.mu.Lock()
	defer s.env.mu.Unlock()

	cats, _, err := s.loadLocked(ctx)
	if err != nil {
		return ProjectCategory{}, err
	}
	ci := findCategory(cats, categoryID)
	if ci < 0 {
		return ProjectCategory{}, notFound("get category", "category", categoryID)
	}
	return cats[ci].Clone(), nil
}

// EnsureCategory returns the category whose name matches name case-insensitively,
// creating it when there is none.
func (s *StageStore) EnsureCategory(ctx context.Context, name, description string) (ProjectCategory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ProjectCategory{}, validationFailed(OpCategoryCreated, "category name cannot be empty")
	}

	var result ProjectCategory
	err := s.env.run(ctx, OpCategoryCreated, func(ctx context.Context, op *Operation) error {
		_, err := s.mutateLocked(ctx, op, func(cats *[]ProjectCategory) (bool, error) {
			for _, c := range *cats {
				if strings.EqualFold(c.Name, name) {
					result = c.Clone()
					op.CategoryID, op.ResourceID = c.ID, c.ID
					return false, nil
				}
			}
			result = s.newCategory(name, description)
			*cats = append(*cats, result)
			op.CategoryID, op.ResourceID = result.ID, result.ID
			return true, nil
		})
		return err
	})
	if err != nil {
		return ProjectCategory{}, err
	}
	return result.Clone(), nil
}

// Stages returns the stages of a category sorted by order.
func (s *StageStore) Stages(ctx context.Context, categoryID string) ([]Stage, error) {
	cat, err := s.Category(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	return cat.Stages, nil
}

// Stage returns one stage by id.
func (s *StageStore) Stage(ctx context.Context, stageID string) (Stage, error) {
	stage, _, err := s.Locate(ctx, stageID)
	return stage, err
}

// Locate returns a stage together with the id of the category that owns it.
func (s *StageStore) Locate(ctx context.Context, stageID string) (Stage, string, error) {
	s.env.mu.Lock()
	defer s.env.mu.Unlock()

	cats, _, err := s.loadLocked(ctx)
	if err != nil {
		return Stage{}, "", err
	}
	ci, si, err := findStage(cats, "locate stage", stageID)
	if err != nil {
		return Stage{}, "", err
	}
	return cats[ci].Stages[si].Clone(), cats[ci].ID, nil
}

// Revision returns the current revision of the category collection.
func (s *StageStore) Revision(ctx context.Context) (store.Revision, error) {
	s.env.mu.Lock()
	defer s.env.mu.Unlock()

	_, rev, err := s.loadLocked(ctx)
	return rev, err
}

// AddStage appends a stage named name to the category with order N+1.
func (s *StageStore) AddStage(ctx context.Context, categoryID, name string) (Stage, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Stage{}, validationFailed(OpStageAdded, "stage name cannot be empty")
	}

	var added Stage
	err := s.env.run(ctx, OpStageAdded, func(ctx context.Context, op *Operation) error {
		op.CategoryID = categoryID
		_, err := s.mutateLocked(ctx, op, func(cats *[]ProjectCategory) (bool, error) {
			ci := findCategory(*cats, categoryID)
			if ci < 0 {
				return false, notFound(OpStageAdded, "category", categoryID)
			}
			cat := &(*cats)[ci]
			added = Stage{
				ID:    s.env.newID(PrefixStageID),
				Name:  name,
				Order: len(cat.Stages) + 1,
			}
			cat.Stages = append(cat.Stages, added)
			op.ResourceID = added.ID
			return true, nil
		})
		return err
	})
	if err != nil {
		return Stage{}, err
	}
	return added, nil
}

// RenameStage changes a stage's name in place.
func (s *StageStore) RenameStage(ctx context.Context, stageID, name string) (Stage, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Stage{}, validationFailed(OpStageRenamed, "stage name cannot be empty")
	}

	var renamed Stage
	err := s.env.run(ctx, OpStageRenamed, func(ctx context.Context, op *Operation) error {
		op.ResourceID = stageID
		_, err := s.mutateLocked(ctx, op, func(cats *[]ProjectCategory) (bool, error) {
			ci, si, err := findStage(*cats, OpStageRenamed, stageID)
			if err != nil {
				return false, err
			}
			op.CategoryID = (*cats)[ci].ID
			stage := &(*cats)[ci].Stages[si]
			changed := stage.Name != name
			stage.Name = name
			renamed = stage.Clone()
			return changed, nil
		})
		return err
	})
	return renamed, err
}

// DeleteStage removes a stage and renumbers the remaining ones to 1..N-1.
// Published versions of the stage are kept.
func (s *StageStore) DeleteStage(ctx context.Context, stageID string) error {
	return s.env.run(ctx, OpStageDeleted, func(ctx context.Context, op *Operation) error {
		op.ResourceID = stageID
		_, err := s.mutateLocked(ctx, op, func(cats *[]ProjectCategory) (bool, error) {
			ci, si, err := findStage(*cats, OpStageDeleted, stageID)
			if err != nil {
				return false, err
			}
			cat := &(*cats)[ci]
			op.CategoryID = cat.ID

			remaining := make([]Stage, 0, len(cat.Stages)-1)
			remaining = append(remaining, cat.Stages[:si]...)
			remaining = append(remaining, cat.Stages[si+1:]...)
			RenumberStages(remaining)
			cat.Stages = remaining
			return true, nil
		})
		return err
	})
}

// MoveStage swaps a stage with its neighbor in dir. Moving the first stage up or the last
// stage down leaves the list unchanged. It returns the resulting stage list.
func (s *StageStore) MoveStage(ctx context.Context, stageID string, dir Direction) ([]Stage, error) {
	if dir != DirectionUp && dir != DirectionDown {
		return nil, validationFailed(OpStageMoved, fmt.Sprintf("unknown direction %q", dir))
	}

	var result []Stage
	err := s.env.run(ctx, OpStageMoved, func(ctx context.Context, op *Operation) error {
		op.ResourceID = stageID
		_, err := s.mutateLocked(ctx, op, func(cats *[]ProjectCategory) (bool, error) {
			ci, si, err := findStage(*cats, OpStageMoved, stageID)
			if err != nil {
				return false, err
			}
			cat := &(*cats)[ci]
			op.CategoryID = cat.ID

			neighbor, ok := NeighborIndex(len(cat.Stages), si, dir)
			if ok {
				cat.Stages[si], cat.Stages[neighbor] = cat.Stages[neighbor], cat.Stages[si]
				RenumberStages(cat.Stages)
			}
			result = cloneStages(cat.Stages)
			return ok, nil
		})
		return err
	})
	return result, err
}

// ReorderStages moves the stage at fromIndex to toIndex (both 0-based positions in order)
// and renumbers the whole list. fromIndex == toIndex leaves the list untouched.
func (s *StageStore) ReorderStages(ctx context.Context, categoryID string, fromIndex, toIndex int) ([]Stage, error) {
	var result []Stage
	err := s.env.run(ctx, OpStagesReordered, func(ctx context.Context, op *Operation) error {
		op.CategoryID = categoryID
		_, err := s.mutateLocked(ctx, op, func(cats *[]ProjectCategory) (bool, error) {
			ci := findCategory(*cats, categoryID)
			if ci < 0 {
				return false, notFound(OpStagesReordered, "category", categoryID)
			}
			cat := &(*cats)[ci]

			n := len(cat.Stages)
			if fromIndex < 0 || fromIndex >= n || toIndex < 0 || toIndex >= n {
				return false, validationFailed(OpStagesReordered,
					fmt.Sprintf("indexes %d -> %d out of range for %d stages", fromIndex, toIndex, n))
			}
			op.ResourceID = cat.Stages[fromIndex].ID
			if fromIndex == toIndex {
				result = cloneStages(cat.Stages)
				return false, nil
			}

			cat.Stages = Relocate(cat.Stages, fromIndex, toIndex)
			RenumberStages(cat.Stages)
			result = cloneStages(cat.Stages)
			return true, nil
		})
		return err
	})
	return result, err
}

// CommitFields writes fields as the stage's live form. expected is the category collection
// revision the caller based its edit on; store.AnyRevision skips the check.
func (s *StageStore) CommitFields(ctx context.Context, stageID string, fields []FormField, expected store.Revision) (Stage, store.Revision, error) {
	if err := validateFields(OpFieldsCommitted, fields); err != nil {
		return Stage{}, store.NoRevision, err
	}

	var (
		committed Stage
		rev       store.Revision
	)
	err := s.env.run(ctx, OpFieldsCommitted, func(ctx context.Context, op *Operation) error {
		op.ResourceID = stageID
		s.env.mu.Lock()
		defer s.env.mu.Unlock()

		var err error
		committed, rev, err = s.setFieldsLocked(ctx, op, stageID, fields, expected)
		return err
	})
	return committed, rev, err
}

// setFieldsLocked replaces a stage's live fields. The caller holds env.mu.
func (s *StageStore) setFieldsLocked(ctx context.Context, op *Operation, stageID string, fields []FormField, expected store.Revision) (Stage, store.Revision, error) {
	var updated Stage
	rev, err := s.mutateExpectingLocked(ctx, op, expected, func(cats *[]ProjectCategory) (bool, error) {
		ci, si, err := findStage(*cats, op.Name, stageID)
		if err != nil {
			return false, err
		}
		op.CategoryID = (*cats)[ci].ID
		stage := &(*cats)[ci].Stages[si]
		stage.Fields = CloneFields(fields)
		updated = stage.Clone()
		return true, nil
	})
	return updated, rev, err
}

// mutateLocked takes env.mu, loads the collection, applies fn and saves when fn reports a change.
func (s *StageStore) mutateLocked(ctx context.Context, op *Operation, fn func(cats *[]ProjectCategory) (bool, error)) (store.Revision, error) {
	s.env.mu.Lock()
	defer s.env.mu.Unlock()
	return s.mutateExpectingLocked(ctx, op, store.AnyRevision, fn)
}

// mutateExpectingLocked is the body of mutateLocked for callers already holding env.mu.
// When expected is not store.AnyRevision the loaded revision must match it.
func (s *StageStore) mutateExpectingLocked(ctx context.Context, op *Operation, expected store.Revision, fn func(cats *[]ProjectCategory) (bool, error)) (store.Revision, error) {
	cats, rev, err := s.loadLocked(ctx)
	if err != nil {
		return store.NoRevision, err
	}
	if expected != store.AnyRevision && rev != expected {
		return rev, &Error{
			Kind:     KindConflict,
			Op:       op.Name,
			Resource: KeyProjectTypes,
			Msg:      fmt.Sprintf("categories changed since revision %d (now %d)", expected, rev),
		}
	}

	changed, err := fn(&cats)
	if err != nil {
		return rev, err
	}
	if !changed {
		op.NoOp = true
		return rev, nil
	}

	if ci := findCategory(cats, op.CategoryID); ci >= 0 {
		cats[ci].UpdatedAt = s.env.now()
	}
	return s.env.repo.SaveCategories(ctx, cats, rev)
}

// loadLocked reads the collection with every category's stages numbered 1..N, seeding
// default categories into an empty one.
func (s *StageStore) loadLocked(ctx context.Context) ([]ProjectCategory, store.Revision, error) {
	cats, rev, err := s.env.repo.LoadCategories(ctx)
	if err != nil {
		return nil, store.NoRevision, err
	}
	for i := range cats {
		// Stored orders may have gaps or duplicates; the next save persists the renumbering.
		SortStagesByOrder(cats[i].Stages)
		RenumberStages(cats[i].Stages)
	}
	if len(cats) > 0 || len(s.env.seeds) == 0 {
		return cats, rev, nil
	}

	for _, seed := range s.env.seeds {
		if strings.TrimSpace(seed.Name) == "" {
			continue
		}
		cats = append(cats, s.newCategory(seed.Name, seed.Description))
	}
	newRev, err := s.env.repo.SaveCategories(ctx, cats, rev)
	if errors.Is(err, ErrConflict) {
		// Another session seeded first.
		return s.env.repo.LoadCategories(ctx)
	}
	if err != nil {
		return nil, store.NoRevision, err
	}
	s.env.logger.Info("Seeded %d default categories", len(cats))
	return cats, newRev, nil
}

func (s *StageStore) newCategory(name, description string) ProjectCategory {
	now := s.env.now()
	return ProjectCategory{
		ID:          s.env.newID(PrefixCategoryID),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Stages:      []Stage{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func findCategory(cats []ProjectCategory, categoryID string) int {
	for i, c := range cats {
		if c.ID == categoryID {
			return i
		}
	}
	return -1
}

func findStage(cats []ProjectCategory, op, stageID string) (int, int, error) {
	for ci, c := range cats {
		for si, st := range c.Stages {
			if st.ID == stageID {
				return ci, si, nil
			}
		}
	}
	return -1, -1, notFound(op, "stage", stageID)
}

func cloneStages(stages []Stage) []Stage {
	out := make([]Stage, len(stages))
	for i, st := range stages {
		out[i] = st.Clone()
	}
	return out
}
