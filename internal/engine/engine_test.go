package engine

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anthropics/worldengine/internal/execution"
	"github.com/anthropics/worldengine/internal/memorycontext"
	"github.com/anthropics/worldengine/internal/worldstate"
)

func newTestEngine(t *testing.T) (*Engine, *worldstate.Store) {
	t.Helper()
	dir := t.TempDir()
	ws := worldstate.NewStore(filepath.Join(dir, "world.json"), nil)
	execStore := execution.NewDocStore(ws)
	adapter := execution.NewAdapter(ws, execStore, nil)
	resolver := memorycontext.NewResolver(execStore)
	return New(ws, adapter, resolver, execStore, nil), ws
}

func TestRunPrintsReadinessBannerAndExits(t *testing.T) {
	e, _ := newTestEngine(t)
	var out bytes.Buffer
	err := e.Run(strings.NewReader("exit\n"), &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), readinessBanner)
}

func TestRunDispatchesRawCommand(t *testing.T) {
	e, ws := newTestEngine(t)
	var out bytes.Buffer
	err := e.Run(strings.NewReader("mark add alpha_hall 0 64 0\nexit\n"), &out)
	require.NoError(t, err)

	doc, err := ws.GetSnapshot()
	require.NoError(t, err)
	require.Len(t, doc.World.Markers, 1)
	require.Equal(t, "alpha_hall", doc.World.Markers[0].Name)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &result))
	require.Equal(t, true, result["Applied"])
}

func TestRunDispatchesWorldMemoryRequest(t *testing.T) {
	e, _ := newTestEngine(t)
	var out bytes.Buffer
	req := `{"type":"world-memory-request.v1","scope":{}}`
	err := e.Run(strings.NewReader(req+"\nexit\n"), &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	var ctx map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &ctx))
	require.Equal(t, "world-memory-context.v1", ctx["type"])
}

func TestRunStripsLeadingPrompt(t *testing.T) {
	e, ws := newTestEngine(t)
	var out bytes.Buffer
	err := e.Run(strings.NewReader("> mark add gate 1 2 3\nexit\n"), &out)
	require.NoError(t, err)

	doc, err := ws.GetSnapshot()
	require.NoError(t, err)
	require.Len(t, doc.World.Markers, 1)
}

func TestHooksFireOnlyOnAppliedCommit(t *testing.T) {
	e, _ := newTestEngine(t)
	var said []string
	e.WithHooks(RuntimeHooks{
		RuntimeSay: func(line string) { said = append(said, line) },
	})
	var out bytes.Buffer
	err := e.Run(strings.NewReader("mark add beacon 0 0 0\nmark\nexit\n"), &out)
	require.NoError(t, err)
	require.NotEmpty(t, said)
	require.Equal(t, []string{"marker beacon placed"}, said)
}
