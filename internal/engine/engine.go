// Package engine implements the line-protocol front end (spec.md §6):
// a readiness banner, one JSON or raw command per stdin line, one JSON
// response per stdout line, and graceful shutdown on `exit` + EOF. The
// narrative/chat front-end itself is an external collaborator (spec.md
// §1 Non-goals); this package only frames requests and responses.
package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/worldengine/internal/commands"
	"github.com/anthropics/worldengine/internal/execution"
	"github.com/anthropics/worldengine/internal/memorycontext"
	"github.com/anthropics/worldengine/internal/worldstate"
)

const readinessBanner = "--- WORLD ONLINE ---"

// Engine owns the stdin/stdout line loop atop a World Store, Execution
// Adapter, and World Memory Context resolver.
type Engine struct {
	worldStore *worldstate.Store
	adapter    *execution.Adapter
	memory     *memorycontext.Resolver
	execStore  execution.Store
	log        *zap.Logger

	out   io.Writer
	seq   int
	hooks *RuntimeHooks
}

// New wires an Engine from its durable collaborators. execStore may be
// nil, in which case committed raw commands skip the world-memory sync
// (the document backend's no-op SyncWorldMemory makes this harmless in
// practice, but tests that don't care about chronicle mirroring can
// omit it).
func New(worldStore *worldstate.Store, adapter *execution.Adapter, memory *memorycontext.Resolver, execStore execution.Store, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{worldStore: worldStore, adapter: adapter, memory: memory, execStore: execStore, log: log}
}

// Run reads lines from in and writes framed responses to out until
// `exit` or EOF, printing the readiness banner first (spec.md §6).
func (e *Engine) Run(in io.Reader, out io.Writer) error {
	e.out = out
	fmt.Fprintln(out, readinessBanner)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimPrefix(strings.TrimSpace(scanner.Text()), ">")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			return nil
		}
		e.dispatchLine(line)
	}
	return scanner.Err()
}

func (e *Engine) dispatchLine(line string) {
	if handoff, ok, err := execution.ParseHandoffLine(line); ok {
		if err != nil {
			e.writeError(fmt.Errorf("malformed handoff: %w", err))
			return
		}
		e.handleHandoff(handoff)
		return
	}

	if strings.HasPrefix(line, "{") {
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(line), &probe); err == nil && memorycontext.IsRequest(probe.Type) {
			e.handleMemoryRequest(line)
			return
		}
	}

	e.handleRawCommand(line)
}

func (e *Engine) handleHandoff(h *execution.Handoff) {
	result, err := e.adapter.ExecuteHandoff(h)
	if err != nil {
		e.log.Error("handoff execution failed", zap.String("handoff_id", h.HandoffID), zap.Error(err))
		e.writeError(err)
		return
	}
	e.writeJSON(result)
}

func (e *Engine) handleMemoryRequest(line string) {
	var req memorycontext.Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		e.writeError(fmt.Errorf("malformed world memory request: %w", err))
		return
	}
	ctx, err := e.memory.Resolve(req)
	if err != nil {
		e.log.Error("world memory resolution failed", zap.Error(err))
		e.writeError(err)
		return
	}
	e.writeJSON(ctx)
}

func (e *Engine) handleRawCommand(line string) {
	operationID := e.nextOperationID()
	eventID := commands.DeriveCommandEventID(line, operationID)
	tr, err := e.worldStore.Transact(func(doc *worldstate.Document) (interface{}, error) {
		return commands.Dispatch(doc, line)
	}, worldstate.TransactOptions{EventID: eventID})
	if err != nil {
		e.log.Error("command transaction failed", zap.String("command", line), zap.Error(err))
		e.writeError(err)
		return
	}
	if tr.Skipped {
		e.writeJSON(commands.Result{Applied: false, OutputLines: []string{"replay skipped"}})
		return
	}
	result, _ := tr.Result.(commands.Result)
	e.writeJSON(result)
	if result.Applied && e.execStore != nil {
		if doc, snapErr := e.worldStore.GetSnapshot(); snapErr == nil {
			if err := e.execStore.SyncWorldMemory(doc); err != nil {
				e.log.Warn("failed to sync world memory after command", zap.String("command", line), zap.Error(err))
			}
		}
	}
	if e.hooks != nil {
		e.hooks.Dispatch(operationID, result)
	}
}

func (e *Engine) nextOperationID() string {
	e.seq++
	return "cli-" + strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.Itoa(e.seq)
}

func (e *Engine) writeJSON(v interface{}) {
	encoded, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintln(e.out, `{"error":"failed to encode response"}`)
		return
	}
	fmt.Fprintln(e.out, string(encoded))
}

func (e *Engine) writeError(err error) {
	fmt.Fprintln(e.out, string(mustJSON(map[string]string{"error": err.Error()})))
}

func mustJSON(v interface{}) []byte {
	encoded, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":"internal encoding failure"}`)
	}
	return encoded
}
