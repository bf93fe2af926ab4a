package engine

import (
	"github.com/anthropics/worldengine/internal/commands"
	"github.com/anthropics/worldengine/internal/worldstate"
)

// RuntimeHooks are the post-commit side effects spec.md §4.D/§9 requires
// to fire only after a transaction has committed and never on a
// skipped replay: narration (`runtimeSay`), marker placement echo
// (`runtimeMark`), background job dispatch (`runtimeJob`), and the two
// observers that watch committed news/response lines without mutating
// anything (`onNews`, `onRespond`). Each field is optional; a nil hook
// is simply not invoked.
type RuntimeHooks struct {
	RuntimeSay  func(line string)
	RuntimeMark func(record *worldstate.ChronicleRecord)
	RuntimeJob  func(operationID string)
	OnNews      func(record *worldstate.NewsRecord)
	OnRespond   func(result commands.Result)
}

// Dispatch fans a committed command Result out to every configured
// hook. It must only be called for transactions that actually
// committed (tr.Skipped == false), so that a duplicate eventId replay
// never re-fires a hook.
func (h RuntimeHooks) Dispatch(operationID string, result commands.Result) {
	if h.OnRespond != nil {
		h.OnRespond(result)
	}
	if !result.Applied {
		return
	}
	if h.RuntimeJob != nil {
		h.RuntimeJob(operationID)
	}
	for _, line := range result.OutputLines {
		if h.RuntimeSay != nil {
			h.RuntimeSay(line)
		}
	}
	if result.ChroniclePreview != nil && h.RuntimeMark != nil {
		h.RuntimeMark(result.ChroniclePreview)
	}
	if result.NewsPreview != nil && h.OnNews != nil {
		h.OnNews(result.NewsPreview)
	}
}

// WithHooks installs hooks that fire after every handled raw command
// commits, wiring the Engine's stdin command loop to a town-crier-style
// narration transport without entangling I/O inside the God Command
// mutators themselves (spec.md §9 "hooks deferred to post-commit").
func (e *Engine) WithHooks(hooks RuntimeHooks) *Engine {
	e.hooks = &hooks
	return e
}
