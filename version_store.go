package formstage

import (
	"context"
	"sort"
	"strings"

	"github.com/davidroman0O/formstage/store"
)

// VersionStore keeps the published form snapshots of every stage. Histories are stored per
// category and never shrink; only the IsActive flags change after a version is written.
type VersionStore struct {
	env    *env
	stages *StageStore
	fields *FieldStore
}

// Publish snapshots fields as the stage's next version, makes it the only active one and
// writes the same fields to the stage's live form. An empty field list fails with
// ErrEmptyForm and changes nothing. An empty publisher falls back to the engine default.
func (v *VersionStore) Publish(ctx context.Context, stageID string, fields []FormField, publisher string) (FormVersion, error) {
	version, _, err := v.publish(ctx, stageID, fields, publisher)
	return version, err
}

// PublishDraft publishes the stage's current editable field list.
func (v *VersionStore) PublishDraft(ctx context.Context, stageID, publisher string) (FormVersion, error) {
	fields, err := v.fields.Fields(ctx, stageID)
	if err != nil {
		return FormVersion{}, err
	}
	return v.Publish(ctx, stageID, fields, publisher)
}

// publish also returns the category collection revision written with the live fields.
func (v *VersionStore) publish(ctx context.Context, stageID string, fields []FormField, publisher string) (FormVersion, store.Revision, error) {
	var (
		published FormVersion
		rev       store.Revision
	)
	err := v.env.run(ctx, OpFormPublished, func(ctx context.Context, op *Operation) error {
		if len(fields) == 0 {
			return &Error{Kind: KindEmptyForm, Op: OpFormPublished, Resource: "stage", ID: stageID}
		}
		if err := validateFields(OpFormPublished, fields); err != nil {
			return err
		}

		v.env.mu.Lock()
		defer v.env.mu.Unlock()

		cats, _, err := v.stages.loadLocked(ctx)
		if err != nil {
			return err
		}
		ci, si, err := findStage(cats, OpFormPublished, stageID)
		if err != nil {
			return err
		}
		categoryID := cats[ci].ID
		stage := cats[ci].Stages[si]
		op.CategoryID = categoryID

		versions, versionsRev, err := v.env.repo.LoadVersions(ctx, categoryID)
		if err != nil {
			return err
		}

		next := 1
		for i := range versions {
			if versions[i].StageID != stageID {
				continue
			}
			if versions[i].Version >= next {
				next = versions[i].Version + 1
			}
			versions[i].IsActive = false
		}

		if strings.TrimSpace(publisher) == "" {
			publisher = v.env.publisher
		}
		published = FormVersion{
			ID:          v.env.newID(PrefixVersionID),
			Version:     next,
			StageID:     stageID,
			StageName:   stage.Name,
			Fields:      CloneFields(fields),
			PublishedAt: v.env.now(),
			PublishedBy: strings.TrimSpace(publisher),
			IsActive:    true,
		}
		op.ResourceID = published.ID
		versions = append(versions, published)

		// The live form goes first; if the history write then fails the previous fields are
		// put back, so a failed publish leaves neither document changed.
		_, rev, err = v.stages.setFieldsLocked(ctx, op, stageID, fields, store.AnyRevision)
		if err != nil {
			return err
		}
		if _, err := v.env.repo.SaveVersions(ctx, categoryID, versions, versionsRev); err != nil {
			if _, _, restoreErr := v.stages.setFieldsLocked(ctx, op, stageID, stage.Fields, rev); restoreErr != nil {
				v.env.logger.Error("Failed to restore fields of stage %s after publish failed: %v", stageID, restoreErr)
			}
			return err
		}
		v.env.logger.Info("Published version %d of stage %s (%d fields)", published.Version, stageID, len(fields))
		return nil
	})
	if err != nil {
		return FormVersion{}, store.NoRevision, err
	}
	return published.Clone(), rev, nil
}

// ListVersions returns the stage's versions, most recent first.
func (v *VersionStore) ListVersions(ctx context.Context, stageID string) ([]FormVersion, error) {
	v.env.mu.Lock()
	defer v.env.mu.Unlock()

	_, versions, _, err := v.stageVersionsLocked(ctx, "list versions", stageID)
	if err != nil {
		return nil, err
	}

	out := make([]FormVersion, 0)
	for _, ver := range versions {
		if ver.StageID == stageID {
			out = append(out, ver.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Version > out[j].Version
	})
	return out, nil
}

// CategoryVersions returns the whole version history stored for a category, as stored.
func (v *VersionStore) CategoryVersions(ctx context.Context, categoryID string) ([]FormVersion, error) {
	versions, _, err := v.env.repo.LoadVersions(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	out := make([]FormVersion, len(versions))
	for i, ver := range versions {
		out[i] = ver.Clone()
	}
	return out, nil
}

// ActiveVersion returns the stage's active version. ok is false when none is active.
func (v *VersionStore) ActiveVersion(ctx context.Context, stageID string) (FormVersion, bool, error) {
	versions, err := v.ListVersions(ctx, stageID)
	if err != nil {
		return FormVersion{}, false, err
	}
	for _, ver := range versions {
		if ver.IsActive {
			return ver, true, nil
		}
	}
	return FormVersion{}, false, nil
}

// Rollback makes versionID the stage's only active version and loads its fields into the
// stage's editable draft. No version is created and the stage's live form is untouched
// until the draft is committed.
func (v *VersionStore) Rollback(ctx context.Context, stageID, versionID string) (FormVersion, error) {
	var chosen FormVersion
	err := v.env.run(ctx, OpFormRolledBack, func(ctx context.Context, op *Operation) error {
		op.ResourceID = versionID

		categoryID, version, changed, err := v.activate(ctx, stageID, versionID)
		if err != nil {
			return err
		}
		op.CategoryID = categoryID
		op.NoOp = !changed
		chosen = version

		v.fields.load(stageID, categoryID, version.Fields)
		return nil
	})
	if err != nil {
		return FormVersion{}, err
	}
	return chosen.Clone(), nil
}

// activate flips the active flags of the stage's versions so only versionID is active.
func (v *VersionStore) activate(ctx context.Context, stageID, versionID string) (string, FormVersion, bool, error) {
	v.env.mu.Lock()
	defer v.env.mu.Unlock()

	categoryID, versions, rev, err := v.stageVersionsLocked(ctx, OpFormRolledBack, stageID)
	if err != nil {
		return "", FormVersion{}, false, err
	}

	target := -1
	for i, ver := range versions {
		if ver.StageID == stageID && ver.ID == versionID {
			target = i
		}
	}
	if target < 0 {
		return "", FormVersion{}, false, notFound(OpFormRolledBack, "version", versionID)
	}

	changed := false
	for i := range versions {
		if versions[i].StageID != stageID {
			continue
		}
		active := i == target
		if versions[i].IsActive != active {
			versions[i].IsActive = active
			changed = true
		}
	}

	if changed {
		if _, err := v.env.repo.SaveVersions(ctx, categoryID, versions, rev); err != nil {
			return "", FormVersion{}, false, err
		}
	}
	return categoryID, versions[target].Clone(), changed, nil
}

func (v *VersionStore) stageVersionsLocked(ctx context.Context, op, stageID string) (string, []FormVersion, store.Revision, error) {
	cats, _, err := v.stages.loadLocked(ctx)
	if err != nil {
		return "", nil, store.NoRevision, err
	}
	ci, _, err := findStage(cats, op, stageID)
	if err != nil {
		return "", nil, store.NoRevision, err
	}
	categoryID := cats[ci].ID

	versions, rev, err := v.env.repo.LoadVersions(ctx, categoryID)
	if err != nil {
		return "", nil, store.NoRevision, err
	}
	return categoryID, versions, rev, nil
}
