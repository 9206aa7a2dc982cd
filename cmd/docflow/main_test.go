package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

type harness struct {
	configPath string
	blobDir    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	blobDir := filepath.Join(dir, "uploads")
	configPath := filepath.Join(dir, "docflow.yaml")

	yaml := fmt.Sprintf(`storage:
  path: %s
blob:
  dir: %s
ingestion:
  chunk_size: 10
  chunk_overlap: 2
enrichment:
  batch_size: 2
logging:
  level: error
`, filepath.Join(dir, "db"), blobDir)
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0644))
	require.NoError(t, os.MkdirAll(blobDir, 0o755))

	return &harness{configPath: configPath, blobDir: blobDir}
}

// run executes one CLI invocation and returns what it wrote to stdout.
func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.Run(append([]string{"docflow", "--config", h.configPath}, args...))
	return out.String(), err
}

func TestCommands_EndToEnd(t *testing.T) {
	h := newHarness(t)

	var words []string
	for i := 0; i < 26; i++ {
		words = append(words, fmt.Sprintf("term%02d", i))
	}
	require.NoError(t, os.WriteFile(filepath.Join(h.blobDir, "notes.txt"), []byte(strings.Join(words, " ")), 0644))

	out, err := h.run(t, "append", "notes.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "Appended event")

	out, err = h.run(t, "parse")
	require.NoError(t, err)
	assert.Contains(t, out, "Processed 1 events")

	out, err = h.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending    3")

	_, err = h.run(t, "backfill")
	require.NoError(t, err)

	out, err = h.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "completed  3")
	assert.Contains(t, out, "backfill")

	out, err = h.run(t, "search", "--limit", "1", "term10 term11 term12")
	require.NoError(t, err)
	assert.Contains(t, out, "1. [")
	assert.NotContains(t, out, "2. [")

	out, err = h.run(t, "bump-version")
	require.NoError(t, err)
	assert.Contains(t, out, "v2")

	out, err = h.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "stale      3")

	_, err = h.run(t, "append", "--op", "deleted", "notes.txt")
	require.NoError(t, err)
	_, err = h.run(t, "parse")
	require.NoError(t, err)

	out, err = h.run(t, "search", "term10")
	require.NoError(t, err)
	assert.Contains(t, out, "No results")
}

func TestAppendCommand_Validation(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "append")
	assert.ErrorContains(t, err, "ITEM_ID")

	_, err = h.run(t, "append", "--op", "moved", "x")
	assert.Error(t, err)
}

func TestReissueCommand_InvalidID(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "reissue", "abc")
	assert.ErrorContains(t, err, "invalid EVENT_ID")
}

func TestReissueCommand_FailedEvent(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "append", "missing.txt")
	require.NoError(t, err)
	var id int
	_, err = fmt.Sscanf(out, "Appended event %d", &id)
	require.NoError(t, err)

	_, err = h.run(t, "parse")
	require.NoError(t, err)

	out, err = h.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "failed     1")

	out, err = h.run(t, "reissue", fmt.Sprint(id))
	require.NoError(t, err)
	assert.Contains(t, out, "Reissued event")

	out, err = h.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "new        1")
}

func TestEventsCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "events")
	require.NoError(t, err)
	assert.Contains(t, out, "No failed events")

	_, err = h.run(t, "append", "missing.txt")
	require.NoError(t, err)

	out, err = h.run(t, "events", "--status", "new")
	require.NoError(t, err)
	assert.Contains(t, out, "created missing.txt attempts=0")

	_, err = h.run(t, "parse")
	require.NoError(t, err)

	out, err = h.run(t, "events")
	require.NoError(t, err)
	assert.Contains(t, out, "missing.txt")
	assert.Contains(t, out, "error=")

	_, err = h.run(t, "events", "--status", "stuck")
	assert.ErrorContains(t, err, "unknown event status")
}

func TestDocumentsCommand(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "documents")
	assert.ErrorContains(t, err, "ITEM_ID")

	out, err := h.run(t, "documents", "memo.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents for memo.txt")

	require.NoError(t, os.WriteFile(filepath.Join(h.blobDir, "memo.txt"), []byte("first draft of the memo"), 0644))
	_, err = h.run(t, "append", "memo.txt")
	require.NoError(t, err)
	_, err = h.run(t, "parse")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(h.blobDir, "memo.txt"), []byte("second draft of the memo"), 0644))
	_, err = h.run(t, "append", "memo.txt")
	require.NoError(t, err)
	_, err = h.run(t, "parse")
	require.NoError(t, err)

	out, err = h.run(t, "documents", "memo.txt")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "inactive")
	assert.Contains(t, lines[1], "active")
	assert.NotContains(t, lines[1], "inactive")
}

func TestSearchCommand_RequiresQuery(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "search")
	assert.ErrorContains(t, err, "QUERY")
}

func TestSetup_InvalidLogLevel(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "--log-level", "loud", "status")
	assert.Error(t, err)
}

func TestGlobalFlags(t *testing.T) {
	app := newApp()
	names := map[string]bool{}
	for _, f := range app.Flags {
		names[f.Names()[0]] = true
	}
	assert.True(t, names["config"])
	assert.True(t, names["log-level"])
	assert.True(t, names["db"])

	var commands []string
	for _, cmd := range app.Commands {
		commands = append(commands, cmd.Name)
	}
	assert.ElementsMatch(t, []string{"append", "reissue", "parse", "backfill", "bump-version", "search", "status", "events", "documents", "serve"}, commands)

	var cfgFlag *cli.StringFlag
	for _, f := range app.Flags {
		if sf, ok := f.(*cli.StringFlag); ok && sf.Name == "config" {
			cfgFlag = sf
		}
	}
	require.NotNil(t, cfgFlag)
	assert.Equal(t, []string{"DOCFLOW_CONFIG"}, cfgFlag.EnvVars)
}
