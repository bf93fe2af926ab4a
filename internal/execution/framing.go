package execution

import (
	"encoding/json"
	"strings"
)

const handoffSchemaVersion = "execution-handoff.v1"

// ParseHandoffLine implements the line-protocol framing rule of spec.md
// §4.F/§6: a line is a handoff iff its trimmed text starts with `{` and
// parses to a value whose schemaVersion is "execution-handoff.v1". Any
// other line is not a handoff; ok reports which.
func ParseHandoffLine(line string) (h *Handoff, ok bool, err error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false, nil
	}

	var probe struct {
		SchemaVersion string `json:"schemaVersion"`
	}
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return nil, false, nil
	}
	if probe.SchemaVersion != handoffSchemaVersion {
		return nil, false, nil
	}

	var parsed Handoff
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, true, err
	}
	return &parsed, true, nil
}
