package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCommand_StoresBuiltGraph(t *testing.T) {
	path := writeFile(t, "sort.yaml", sortGraph)
	db := filepath.Join(t.TempDir(), "weft.db")

	out, err := execute(t, "snapshot", path, "--db", db, "--format", "json")
	require.NoError(t, err)

	var result SnapshotResult
	decodeData(t, out, &result)
	assert.Equal(t, "sort-lines", result.Name)
	assert.Equal(t, 2, result.Nodes)
	assert.Equal(t, 1, result.Pending)
	assert.Len(t, result.Hash, 64)
	assert.NotEmpty(t, result.ID)

	st, err := openStore(db)
	require.NoError(t, err)
	defer st.Close()

	stored, err := st.ReadSnapshot(commandContextForTest(), result.ID)
	require.NoError(t, err)
	assert.Equal(t, "sort-lines", stored.Document["name"])
	graph := stored.Document["graph"].(map[string]any)
	assert.Len(t, graph["nodes"], 2)
}

func TestSnapshotCommand_CustomNameAndList(t *testing.T) {
	path := writeFile(t, "sort.yaml", sortGraph)
	db := filepath.Join(t.TempDir(), "weft.db")

	_, err := execute(t, "snapshot", path, "--db", db, "--name", "nightly")
	require.NoError(t, err)
	_, err = execute(t, "snapshot", path, "--db", db)
	require.NoError(t, err)

	out, err := execute(t, "snapshot", "--db", db, "--list", "--format", "json")
	require.NoError(t, err)
	var all []SnapshotResult
	decodeData(t, out, &all)
	require.Len(t, all, 2)

	out, err = execute(t, "snapshot", "--db", db, "--list", "--name", "nightly", "--format", "json")
	require.NoError(t, err)
	var named []SnapshotResult
	decodeData(t, out, &named)
	require.Len(t, named, 1)
	assert.Equal(t, "nightly", named[0].Name)
}

func TestSnapshotCommand_RequiresGraph(t *testing.T) {
	db := filepath.Join(t.TempDir(), "weft.db")

	_, err := execute(t, "snapshot", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestResumeCommand_RunsSnapshot(t *testing.T) {
	path := writeFile(t, "sort.yaml", sortGraph)
	db := filepath.Join(t.TempDir(), "weft.db")

	_, err := execute(t, "snapshot", path, "--db", db)
	require.NoError(t, err)

	out, err := execute(t, "resume", "--db", db, "--name", "sort-lines", "--format", "json")
	require.NoError(t, err)

	var result RunResult
	decodeData(t, out, &result)
	assert.Equal(t, "sort-lines", result.Graph)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "sort", result.Results[0].Node)
	assert.Equal(t, []any{"a", "b", "c"}, result.Results[0].Value)
	assert.Equal(t, 2, result.Stored)
	assert.Zero(t, result.Pending)
	assert.Empty(t, result.Snapshot)
}

func TestResumeCommand_ByID(t *testing.T) {
	path := writeFile(t, "sort.yaml", sortGraph)
	db := filepath.Join(t.TempDir(), "weft.db")

	out, err := execute(t, "snapshot", path, "--db", db, "--format", "json")
	require.NoError(t, err)
	var snap SnapshotResult
	decodeData(t, out, &snap)

	out, err = execute(t, "resume", "--db", db, "--id", snap.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "sort\t[\"a\",\"b\",\"c\"]")
}

func TestResumeCommand_UnknownSnapshot(t *testing.T) {
	db := filepath.Join(t.TempDir(), "weft.db")

	_, err := execute(t, "resume", "--db", db, "--name", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no snapshot with name missing")
}

func TestResumeCommand_NeedsNameOrID(t *testing.T) {
	db := filepath.Join(t.TempDir(), "weft.db")

	_, err := execute(t, "resume", "--db", db)
	require.Error(t, err)

	_, err = execute(t, "resume", "--db", db, "--name", "a", "--id", "b")
	require.Error(t, err)
}
