package formstage

import (
	"context"
	"fmt"
	"sort"
)

// Issue is one integrity problem found by Doctor.
type Issue struct {
	Check      string `json:"check"`
	CategoryID string `json:"categoryId,omitempty"`
	ResourceID string `json:"resourceId,omitempty"`
	Detail     string `json:"detail"`
}

// Report is the result of Doctor.
type Report struct {
	Categories int     `json:"categories"`
	Stages     int     `json:"stages"`
	Versions   int     `json:"versions"`
	Issues     []Issue `json:"issues"`
}

// Healthy reports whether no issue was found.
func (r Report) Healthy() bool {
	return len(r.Issues) == 0
}

// Integrity check names.
const (
	CheckCorrupt        = "corrupt_document"
	CheckOrder          = "order_contiguity"
	CheckDuplicateStage = "duplicate_stage_id"
	CheckActiveVersion  = "single_active_version"
	CheckVersionNumbers = "version_numbers"
	CheckOrphanVersions = "orphan_versions"
)

type corruptionScanner interface {
	CorruptKeys(ctx context.Context) ([]string, error)
}

type versionKeyLister interface {
	VersionCategoryIDs(ctx context.Context) ([]string, error)
}

// Doctor checks the stored state against the engine's invariants: contiguous stage order,
// unique stage ids, at most one active version per stage, unique version numbers per stage,
// and parseable documents. It reads without writing or repairing anything.
func (e *Engine) Doctor(ctx context.Context) (Report, error) {
	var report Report

	if scanner, ok := e.env.repo.(corruptionScanner); ok {
		keys, err := scanner.CorruptKeys(ctx)
		if err != nil {
			return report, err
		}
		for _, key := range keys {
			report.Issues = append(report.Issues, Issue{
				Check:      CheckCorrupt,
				ResourceID: key,
				Detail:     "document does not parse and is read as an empty collection",
			})
		}
	}

	cats, _, err := e.env.repo.LoadCategories(ctx)
	if err != nil {
		return report, err
	}
	report.Categories = len(cats)

	stageIDs := make(map[string]string)
	known := make(map[string]bool, len(cats))
	for _, cat := range cats {
		known[cat.ID] = true
		report.Stages += len(cat.Stages)

		if !OrdersContiguous(cat.Stages) {
			report.Issues = append(report.Issues, Issue{
				Check:      CheckOrder,
				CategoryID: cat.ID,
				Detail:     fmt.Sprintf("stage orders %v are not 1..%d", stageOrders(cat.Stages), len(cat.Stages)),
			})
		}
		for _, st := range cat.Stages {
			if owner, dup := stageIDs[st.ID]; dup {
				report.Issues = append(report.Issues, Issue{
					Check:      CheckDuplicateStage,
					CategoryID: cat.ID,
					ResourceID: st.ID,
					Detail:     fmt.Sprintf("stage id also used in category %s", owner),
				})
				continue
			}
			stageIDs[st.ID] = cat.ID
		}

		versions, _, err := e.env.repo.LoadVersions(ctx, cat.ID)
		if err != nil {
			return report, err
		}
		report.Versions += len(versions)
		report.Issues = append(report.Issues, checkVersions(cat.ID, versions)...)
	}

	if lister, ok := e.env.repo.(versionKeyLister); ok {
		ids, err := lister.VersionCategoryIDs(ctx)
		if err != nil {
			return report, err
		}
		for _, id := range ids {
			if !known[id] {
				report.Issues = append(report.Issues, Issue{
					Check:      CheckOrphanVersions,
					CategoryID: id,
					Detail:     "version history for a category that does not exist",
				})
			}
		}
	}

	e.env.logger.Debug("Doctor checked %d categories, %d stages, %d versions: %d issues",
		report.Categories, report.Stages, report.Versions, len(report.Issues))
	return report, nil
}

func checkVersions(categoryID string, versions []FormVersion) []Issue {
	var issues []Issue

	active := make(map[string]int)
	numbers := make(map[string]map[int]bool)
	for _, v := range versions {
		if v.IsActive {
			active[v.StageID]++
		}
		if numbers[v.StageID] == nil {
			numbers[v.StageID] = make(map[int]bool)
		}
		if v.Version < 1 || numbers[v.StageID][v.Version] {
			issues = append(issues, Issue{
				Check:      CheckVersionNumbers,
				CategoryID: categoryID,
				ResourceID: v.ID,
				Detail:     fmt.Sprintf("version number %d of stage %s is invalid or reused", v.Version, v.StageID),
			})
		}
		numbers[v.StageID][v.Version] = true
	}

	stages := make([]string, 0, len(active))
	for stageID, n := range active {
		if n > 1 {
			stages = append(stages, stageID)
		}
	}
	sort.Strings(stages)
	for _, stageID := range stages {
		issues = append(issues, Issue{
			Check:      CheckActiveVersion,
			CategoryID: categoryID,
			ResourceID: stageID,
			Detail:     fmt.Sprintf("%d active versions", active[stageID]),
		})
	}
	return issues
}

func stageOrders(stages []Stage) []int {
	out := make([]int, len(stages))
	for i, st := range stages {
		out[i] = st.Order
	}
	return out
}
