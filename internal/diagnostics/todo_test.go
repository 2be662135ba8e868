package diagnostics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quicklaunch/internal/models"
)

func writeTodo(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, todoFileName), []byte(content), 0o644))
}

func readTodo(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, todoFileName))
	require.NoError(t, err)
	return string(data)
}

func TestItemsParsesSectionsAndAutoDetected(t *testing.T) {
	dir := t.TempDir()
	writeTodo(t, dir, strings.Join([]string{
		"## High",
		"- [ ] fix the crash",
		"  > happens on startup",
		"## Medium",
		"- [ ] polish the UI",
		"## Auto-Detected Issues (from troubleshooting log)",
		"### [2026-08-01] web",
		"web has crashed 6 times recently — investigate before relying on auto-restart",
		"",
	}, "\n"))

	e := New(dir)
	items, err := e.Items()
	require.NoError(t, err)

	var high, medium, auto int
	for _, it := range items {
		switch {
		case it.IsAutoDetected:
			auto++
			assert.Equal(t, "High", it.Priority, "auto-detected items should be treated as High priority")
		case it.Priority == "High":
			high++
		case it.Priority == "Medium":
			medium++
		}
	}
	assert.Equal(t, 1, high)
	assert.Equal(t, 1, medium)
	assert.Equal(t, 1, auto)
}

func TestSynthesizeTodoIsIdempotentPerDay(t *testing.T) {
	dir := t.TempDir()
	writeTodo(t, dir, "## High\n\n## Support Codes Reference\n")
	e := New(dir)

	analysis := models.Analysis{Message: "web has crashed 6 times recently", Action: "investigate"}
	require.NoError(t, e.SynthesizeTodo("web", analysis))
	require.NoError(t, e.SynthesizeTodo("web", analysis))

	content := readTodo(t, dir)
	assert.Equal(t, 1, strings.Count(content, "] web"), "expected exactly one auto-todo entry for today:\n%s", content)
}

func TestTriageParkingMovesItemPreservingText(t *testing.T) {
	dir := t.TempDir()
	writeTodo(t, dir, "## High\n- [ ] flaky test\n## Support Codes Reference\n")
	e := New(dir)

	result, err := e.Triage("web", []models.TriageItem{{Text: "flaky test", Priority: "High", Action: "parking"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Parking)

	content := readTodo(t, dir)
	assert.Contains(t, content, "## Parking Lot")
	assert.Contains(t, content, "- [ ] flaky test")
	assert.NotContains(t, content, "## High\n- [ ] flaky test", "expected item removed from its original section")
}

func TestTriageImplementInsertsAtTopOfNextSession(t *testing.T) {
	dir := t.TempDir()
	writeTodo(t, dir, "## High\n- [ ] item a\n- [ ] item b\n")
	e := New(dir)

	_, err := e.Triage("web", []models.TriageItem{{Text: "item b", Priority: "High", Action: "implement"}})
	require.NoError(t, err)

	content := readTodo(t, dir)
	nextIdx := strings.Index(content, "## Next Session")
	itemIdx := strings.Index(content, "- [ ] item b")
	require.NotEqual(t, -1, nextIdx)
	require.NotEqual(t, -1, itemIdx)
	assert.Greater(t, itemIdx, nextIdx, "expected item b placed under Next Session")
}

func TestTriageDontdoRemovesItemAndRecordsResolution(t *testing.T) {
	dir := t.TempDir()
	writeTodo(t, dir, "## Low\n- [ ] stale idea\n")
	e := New(dir)

	result, err := e.Triage("web", []models.TriageItem{{Text: "stale idea", Priority: "Low", Action: "dontdo"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Dontdo)

	content := readTodo(t, dir)
	assert.NotContains(t, content, "stale idea", "expected the item removed from TODO.md")

	resolutions, err := e.Resolutions()
	require.NoError(t, err)
	require.Len(t, resolutions, 1)
	assert.Equal(t, models.DispositionCancelled, resolutions[0].Disposition)
}

func TestAddResolutionAutoClassifiesAndDeletesMatchingTodo(t *testing.T) {
	dir := t.TempDir()
	writeTodo(t, dir, "## High\n- [ ] port conflict on web\n")
	e := New(dir)

	res, deleted, err := e.AddResolution("web", "port conflict on web", "", models.DispositionResolved, "freed the port", "")
	require.NoError(t, err)
	assert.True(t, deleted, "expected the matching TODO item to be deleted")
	assert.Equal(t, models.ErrorTypePortInUse, res.ErrorType)

	content := readTodo(t, dir)
	assert.NotContains(t, content, "port conflict on web", "expected the resolved TODO line removed")
}
