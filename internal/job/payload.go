package job

import (
	"encoding/json"
	"fmt"
)

// Inventory is either a structured group/host mapping or pre-formatted
// inventory text. Exactly one of the two is set.
type Inventory struct {
	Groups map[string]InventoryGroup
	Text   string
}

// InventoryGroup holds the hosts of one inventory group. A group with no
// hosts still produces a section header when rendered.
type InventoryGroup struct {
	Hosts map[string]map[string]string `json:"hosts,omitempty"`
}

// UnmarshalJSON accepts either a JSON object (structured mapping) or a JSON
// string (verbatim inventory text).
func (inv *Inventory) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		inv.Text = text
		return nil
	}

	var groups map[string]InventoryGroup
	if err := json.Unmarshal(data, &groups); err != nil {
		return fmt.Errorf("inventory must be a string or a group mapping: %w", err)
	}
	inv.Groups = groups
	return nil
}

// MarshalJSON is the inverse of UnmarshalJSON.
func (inv Inventory) MarshalJSON() ([]byte, error) {
	if inv.Text != "" {
		return json.Marshal(inv.Text)
	}
	return json.Marshal(inv.Groups)
}

// Empty reports whether no inventory was provided at all.
func (inv Inventory) Empty() bool {
	return inv.Text == "" && len(inv.Groups) == 0
}

// PlaybookPayload is the payload of a playbook-run job.
type PlaybookPayload struct {
	Playbook  string         `json:"playbook"`
	Inventory Inventory      `json:"inventory"`
	Variables map[string]any `json:"variables,omitempty"`
}

// TerraformPayload is the payload of a plan or apply job.
type TerraformPayload struct {
	WorkingDir string         `json:"working_dir"`
	Variables  map[string]any `json:"variables,omitempty"`
}

// EchoPayload is the payload of an echo job, used for pipeline verification
// without external dependencies.
type EchoPayload struct {
	Message string `json:"message"`
}

// ValidatePayload checks that raw is a well-formed payload for jobType.
// It returns a *ValidationError so the submitter gets an immediate answer
// before the job ever enters the queue.
func ValidatePayload(jobType Type, raw json.RawMessage) error {
	switch jobType {
	case TypePlaybookRun:
		var p PlaybookPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return &ValidationError{Field: "payload", Reason: err.Error()}
		}
		if p.Playbook == "" {
			return &ValidationError{Field: "playbook", Reason: "required"}
		}
		if p.Inventory.Empty() {
			return &ValidationError{Field: "inventory", Reason: "required"}
		}
	case TypePlan, TypeApply:
		var p TerraformPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return &ValidationError{Field: "payload", Reason: err.Error()}
		}
		if p.WorkingDir == "" {
			return &ValidationError{Field: "working_dir", Reason: "required"}
		}
	case TypeEcho:
		var p EchoPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return &ValidationError{Field: "payload", Reason: err.Error()}
		}
		if p.Message == "" {
			return &ValidationError{Field: "message", Reason: "required"}
		}
	default:
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown job type %q", jobType)}
	}
	return nil
}
