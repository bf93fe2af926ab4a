package memorycontext

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anthropics/worldengine/internal/commands"
	"github.com/anthropics/worldengine/internal/execution"
	"github.com/anthropics/worldengine/internal/worldstate"
)

func newTestResolver(t *testing.T) (*Resolver, *worldstate.Store) {
	t.Helper()
	dir := t.TempDir()
	ws := worldstate.NewStore(filepath.Join(dir, "world.json"), nil)
	_, err := ws.Transact(func(doc *worldstate.Document) (interface{}, error) {
		doc.World.Towns["alpha"] = &worldstate.Town{Name: "alpha", Hope: 5, Dread: 1}
		return nil, nil
	}, worldstate.TransactOptions{})
	require.NoError(t, err)
	return NewResolver(execution.NewDocStore(ws)), ws
}

func TestResolveClampsToChronicleCeiling(t *testing.T) {
	resolver, ws := newTestResolver(t)

	for i := 0; i < 30; i++ {
		opID := strconv.Itoa(i)
		_, err := ws.Transact(func(doc *worldstate.Document) (interface{}, error) {
			return commands.Dispatch(doc, "mark add spot_"+opID+" 0 64 0")
		}, worldstate.TransactOptions{EventID: opID})
		require.NoError(t, err)
	}

	ctx, err := resolver.Resolve(Request{
		Type:  requestSchemaVersion,
		Scope: Scope{ChronicleLimit: 1000, HistoryLimit: 1000},
	})
	require.NoError(t, err)
	require.Equal(t, contextSchemaVersion, ctx.Type)
	require.Equal(t, contextSchemaVersionN, ctx.SchemaVersion)
	require.Equal(t, worldstate.MaxContextChronicleRecords, ctx.Scope.ChronicleLimit)
	require.Len(t, ctx.RecentChronicle, worldstate.MaxContextChronicleRecords)
	require.Nil(t, ctx.TownSummary)
	require.Nil(t, ctx.FactionSummary)
}

func TestResolveTownSummary(t *testing.T) {
	resolver, _ := newTestResolver(t)

	ctx, err := resolver.Resolve(Request{
		Type:  requestSchemaVersion,
		Scope: Scope{TownID: "alpha"},
	})
	require.NoError(t, err)
	require.NotNil(t, ctx.TownSummary)
	require.Equal(t, 5, ctx.TownSummary.Hope)
	require.Equal(t, 1, ctx.TownSummary.Dread)
}

func TestIsRequest(t *testing.T) {
	require.True(t, IsRequest("world-memory-request.v1"))
	require.False(t, IsRequest("execution-handoff.v1"))
}
