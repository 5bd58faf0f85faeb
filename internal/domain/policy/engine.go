package policy

import (
	"encoding/json"
	"time"
)

// Service evaluates plan requests against the currently loaded policy
// document. Implementations must evaluate PreCheck rules in a fixed order:
// allow-list, deny-list, time window, pre-schema.
type Service interface {
	// PreCheck evaluates a capability request before candidate filtering.
	// now, when non-zero, is injected for deterministic window evaluation;
	// a zero value means "use wall-clock time".
	PreCheck(tenant, capability string, input map[string]any, now time.Time) PreDecision
	// PostCheck evaluates a tool's output against the tenant's post-schema
	// for the capability, if one is declared.
	PostCheck(tenant, capability string, output map[string]any) PostDecision
}

// Provider exposes the currently active policy Document. Implementations
// may swap the document atomically to support hot reload without the
// Service needing to know about the source (file, memory, etc.).
type Provider interface {
	Current() *Document
}

// SchemaMap is the shape preSchemas/postSchemas take in a TenantPolicy:
// capability name -> raw JSON Schema.
type SchemaMap = map[string]json.RawMessage
