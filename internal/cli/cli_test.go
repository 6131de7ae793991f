package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidroman0O/formstage"
)

type envelope[T any] struct {
	Data T              `json:"data"`
	Meta map[string]any `json:"meta"`
}

// setupWorkspace points the CLI at a fresh sqlite database in a temp dir.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("FORMSTAGE_CONFIG", "")
	t.Setenv("FORMSTAGE_BACKEND", "sqlite")
	t.Setenv("FORMSTAGE_SQLITE_PATH", filepath.Join(dir, "formstage.db"))
	t.Setenv("FORMSTAGE_LOG_LEVEL", "error")
	t.Setenv("FORMSTAGE_AUDIT_LOG", "")
	t.Setenv("FORMSTAGE_PUBLISHER", "")
	return dir
}

func runCLI(t *testing.T, args ...string) (stdout, stderr []byte, err error) {
	t.Helper()

	cmd := NewRootCmd()
	var outBuf, errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

func mustRun[T any](t *testing.T, args ...string) envelope[T] {
	t.Helper()
	out, stderr, err := runCLI(t, args...)
	require.NoError(t, err, "stderr: %s", stderr)

	var env envelope[T]
	require.NoError(t, json.Unmarshal(out, &env), "stdout: %s", out)
	return env
}

func stageNames(stages []formstage.Stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return names
}

func TestCategoriesAndStages(t *testing.T) {
	setupWorkspace(t)

	cat := mustRun[formstage.ProjectCategory](t, "categories", "add", "Infrastructure", "--description", "Roads").Data
	require.NotEmpty(t, cat.ID)
	assert.Equal(t, "Roads", cat.Description)

	again := mustRun[formstage.ProjectCategory](t, "categories", "add", "infrastructure").Data
	assert.Equal(t, cat.ID, again.ID)

	var ids []string
	for _, name := range []string{"Draft", "Review", "Approved"} {
		stage := mustRun[formstage.Stage](t, "stages", "add", cat.ID, name).Data
		ids = append(ids, stage.ID)
	}

	stages := mustRun[[]formstage.Stage](t, "stages", "reorder", cat.ID, "3", "1").Data
	assert.Equal(t, []string{"Approved", "Draft", "Review"}, stageNames(stages))

	stages = mustRun[[]formstage.Stage](t, "stages", "move", ids[0], "down").Data
	assert.Equal(t, []string{"Approved", "Review", "Draft"}, stageNames(stages))

	renamed := mustRun[formstage.Stage](t, "stages", "rename", ids[1], "Checked").Data
	assert.Equal(t, "Checked", renamed.Name)

	stages = mustRun[[]formstage.Stage](t, "stages", "delete", ids[2]).Data
	assert.Equal(t, []string{"Checked", "Draft"}, stageNames(stages))
	assert.Equal(t, 1, stages[0].Order)
	assert.Equal(t, 2, stages[1].Order)

	cats := mustRun[[]formstage.ProjectCategory](t, "categories", "list")
	require.Len(t, cats.Data, 1)
	assert.EqualValues(t, 1, cats.Meta["count"])
}

func TestFieldsPublishAndRollback(t *testing.T) {
	setupWorkspace(t)

	cat := mustRun[formstage.ProjectCategory](t, "categories", "add", "Education").Data
	stage := mustRun[formstage.Stage](t, "stages", "add", cat.ID, "Intake").Data

	stage = mustRun[formstage.Stage](t, "fields", "add", stage.ID, "text").Data
	require.Len(t, stage.Fields, 1)
	fieldID := stage.Fields[0].ID

	stage = mustRun[formstage.Stage](t, "fields", "update", stage.ID, fieldID, "--label", "Name", "--required").Data
	assert.Equal(t, "Name", stage.Fields[0].Label)
	assert.True(t, stage.Fields[0].Required)

	v1 := mustRun[formstage.FormVersion](t, "--publisher", "alice", "versions", "publish", stage.ID).Data
	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, "alice", v1.PublishedBy)
	assert.True(t, v1.IsActive)

	stage = mustRun[formstage.Stage](t, "fields", "add", stage.ID, "number").Data
	numberID := stage.Fields[1].ID
	stage = mustRun[formstage.Stage](t, "fields", "update", stage.ID, numberID, "--min", "1", "--max", "10").Data
	require.NotNil(t, stage.Fields[1].Validation)
	assert.Equal(t, 10.0, *stage.Fields[1].Validation.Max)

	stage = mustRun[formstage.Stage](t, "fields", "move", stage.ID, numberID, "1").Data
	assert.Equal(t, numberID, stage.Fields[0].ID)

	v2 := mustRun[formstage.FormVersion](t, "versions", "publish", stage.ID).Data
	assert.Equal(t, 2, v2.Version)

	versions := mustRun[[]formstage.FormVersion](t, "versions", "list", stage.ID).Data
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)

	stage = mustRun[formstage.Stage](t, "versions", "rollback", stage.ID, v1.ID).Data
	require.Len(t, stage.Fields, 1)
	assert.Equal(t, "Name", stage.Fields[0].Label)

	active := mustRun[formstage.FormVersion](t, "versions", "active", stage.ID)
	assert.Equal(t, v1.ID, active.Data.ID)
	assert.Equal(t, true, active.Meta["active"])

	fields := mustRun[[]formstage.FormField](t, "fields", "list", stage.ID).Data
	require.Len(t, fields, 1)
	assert.Equal(t, fieldID, fields[0].ID)

	stage = mustRun[formstage.Stage](t, "fields", "delete", stage.ID, fieldID).Data
	assert.Empty(t, stage.Fields)
}

func TestErrorsAreReported(t *testing.T) {
	setupWorkspace(t)

	_, stderr, err := runCLI(t, "stages", "add", "cat_missing", "Draft")
	require.Error(t, err)
	assert.ErrorIs(t, err, formstage.ErrNotFound)
	assert.Contains(t, string(stderr), "not_found")

	cat := mustRun[formstage.ProjectCategory](t, "categories", "add", "Health").Data
	stage := mustRun[formstage.Stage](t, "stages", "add", cat.ID, "Triage").Data

	_, stderr, err = runCLI(t, "versions", "publish", stage.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, formstage.ErrEmptyForm)
	assert.Contains(t, string(stderr), "empty_form")

	_, _, err = runCLI(t, "fields", "add", stage.ID, "hologram")
	assert.ErrorIs(t, err, formstage.ErrValidation)

	_, _, err = runCLI(t, "stages", "reorder", cat.ID, "0", "1")
	assert.Error(t, err)

	_, _, err = runCLI(t, "schema")
	assert.Error(t, err)
}

func TestSchemaCommand(t *testing.T) {
	setupWorkspace(t)

	out, _, err := runCLI(t, "schema", "--documents")
	require.NoError(t, err)
	var docs map[string]any
	require.NoError(t, json.Unmarshal(out, &docs))
	assert.Contains(t, docs, formstage.KeyProjectTypes)

	cat := mustRun[formstage.ProjectCategory](t, "categories", "add", "Finance").Data
	stage := mustRun[formstage.Stage](t, "stages", "add", cat.ID, "Budget").Data
	stage = mustRun[formstage.Stage](t, "fields", "add", stage.ID, "email").Data

	out, _, err = runCLI(t, "schema", stage.ID)
	require.NoError(t, err)
	var schema struct {
		Title      string                    `json:"title"`
		Properties map[string]map[string]any `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(out, &schema))
	assert.Equal(t, "Budget", schema.Title)
	require.Contains(t, schema.Properties, stage.Fields[0].ID)
	assert.Equal(t, "email", schema.Properties[stage.Fields[0].ID]["format"])
}

func TestDoctorCommand(t *testing.T) {
	setupWorkspace(t)

	cat := mustRun[formstage.ProjectCategory](t, "categories", "add", "Transport").Data
	mustRun[formstage.Stage](t, "stages", "add", cat.ID, "Plan")

	report := mustRun[formstage.Report](t, "doctor", "--fail")
	assert.True(t, report.Data.Healthy())
	assert.Equal(t, 1, report.Data.Stages)
	assert.Equal(t, true, report.Meta["healthy"])
}

func TestAuditLogFromConfig(t *testing.T) {
	dir := setupWorkspace(t)
	auditPath := filepath.Join(dir, "logs", "audit.jsonl")
	t.Setenv("FORMSTAGE_AUDIT_LOG", auditPath)

	cat := mustRun[formstage.ProjectCategory](t, "categories", "add", "Water").Data
	mustRun[formstage.Stage](t, "stages", "add", cat.ID, "Survey")

	f, err := os.Open(auditPath)
	require.NoError(t, err)
	defer f.Close()

	events, err := formstage.ReadEvents(f)
	require.NoError(t, err)
	actions := make([]string, len(events))
	for i, e := range events {
		actions[i] = e.Action
	}
	assert.Equal(t, []string{formstage.OpCategoryCreated, formstage.OpStageAdded}, actions)
}

func TestConfigFileSelectsBackend(t *testing.T) {
	dir := setupWorkspace(t)
	t.Setenv("FORMSTAGE_BACKEND", "")
	t.Setenv("FORMSTAGE_SQLITE_PATH", "")

	dbPath := filepath.Join(dir, "from-config.db")
	cfgPath := filepath.Join(dir, "formstage.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("backend: sqlite\nsqlite:\n  path: "+dbPath+"\ndefaultCategories:\n  - name: Seeded\n"), 0o644))

	cats := mustRun[[]formstage.ProjectCategory](t, "--config", cfgPath, "categories", "list").Data
	require.Len(t, cats, 1)
	assert.Equal(t, "Seeded", cats[0].Name)

	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}
