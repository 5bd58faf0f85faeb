// Package registry contains domain types for the tool catalog: the declared
// capabilities, SLAs, preconditions, and endpoints that make up a Tool, and
// the immutable Snapshot the planner reads from.
package registry

import (
	"fmt"
	"time"
)

// EndpointType identifies the transport variant of a Tool's Endpoint.
type EndpointType string

const (
	// EndpointHTTP invokes the tool over HTTP.
	EndpointHTTP EndpointType = "http"
	// EndpointRPA invokes the tool via a scripted RPA driver.
	EndpointRPA EndpointType = "rpa"
)

// defaultEndpointTimeoutMs is used when a tool declares no endpoint at all.
const defaultEndpointTimeoutMs = 3000

// Capability is a named abstract operation a Tool implements. Inputs and
// outputs are documentation-only type maps (field name -> type name) and
// are never enforced at runtime by the core.
type Capability struct {
	Name    string            `json:"name" yaml:"name"`
	Inputs  map[string]string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs map[string]string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// SLA declares a Tool's advertised service level.
type SLA struct {
	P95Ms           int     `json:"p95_ms,omitempty" yaml:"p95_ms,omitempty"`
	SuccessRateMin  float64 `json:"success_rate_min,omitempty" yaml:"success_rate_min,omitempty"`
}

// Preconditions declares what a Tool requires of the calling environment
// before it can be considered a candidate.
type Preconditions struct {
	RequiresNetwork bool     `json:"requiresNetwork,omitempty" yaml:"requiresNetwork,omitempty"`
	RequiresVpn     bool     `json:"requiresVpn,omitempty" yaml:"requiresVpn,omitempty"`
	Env             []string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Endpoint declares how a Tool is invoked. Exactly one of the HTTP or RPA
// fields is populated, selected by Type.
type Endpoint struct {
	Type      EndpointType `json:"type" yaml:"type"`
	URL       string       `json:"url,omitempty" yaml:"url,omitempty"`
	Script    string       `json:"script,omitempty" yaml:"script,omitempty"`
	TimeoutMs int          `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// TimeoutOrDefault returns the endpoint's configured timeout, or the
// package default when no endpoint (or a zero timeout) is declared.
func (e *Endpoint) TimeoutOrDefault() time.Duration {
	if e == nil || e.TimeoutMs <= 0 {
		return defaultEndpointTimeoutMs * time.Millisecond
	}
	return time.Duration(e.TimeoutMs) * time.Millisecond
}

// Tool is a concrete, callable implementation of one or more capabilities.
type Tool struct {
	ID            string          `json:"id" yaml:"id"`
	Name          string          `json:"name" yaml:"name"`
	Version       string          `json:"version" yaml:"version"`
	Description   string          `json:"description,omitempty" yaml:"description,omitempty"`
	Capabilities  []Capability    `json:"capabilities" yaml:"capabilities"`
	CostEstimate  *float64        `json:"cost_estimate,omitempty" yaml:"cost_estimate,omitempty"`
	SLA           *SLA            `json:"sla,omitempty" yaml:"sla,omitempty"`
	Preconditions *Preconditions  `json:"preconditions,omitempty" yaml:"preconditions,omitempty"`
	Endpoint      *Endpoint       `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// HasCapability reports whether the tool declares the named capability.
func (t *Tool) HasCapability(name string) bool {
	for _, c := range t.Capabilities {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Validate checks the invariants a Tool must hold beyond what JSON-Schema
// structural validation already enforces: at least one capability, a
// non-negative cost, a positive endpoint timeout.
func (t *Tool) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("tool: id is required")
	}
	if len(t.Capabilities) == 0 {
		return fmt.Errorf("tool %s: at least one capability is required", t.ID)
	}
	if t.CostEstimate != nil && *t.CostEstimate < 0 {
		return fmt.Errorf("tool %s: cost_estimate must be >= 0", t.ID)
	}
	if t.SLA != nil {
		if t.SLA.P95Ms < 0 {
			return fmt.Errorf("tool %s: sla.p95_ms must be a positive integer", t.ID)
		}
		if t.SLA.SuccessRateMin < 0 || t.SLA.SuccessRateMin > 1 {
			return fmt.Errorf("tool %s: sla.success_rate_min must be in [0,1]", t.ID)
		}
	}
	if t.Endpoint != nil {
		switch t.Endpoint.Type {
		case EndpointHTTP:
			if t.Endpoint.URL == "" {
				return fmt.Errorf("tool %s: endpoint type http requires url", t.ID)
			}
		case EndpointRPA:
			if t.Endpoint.Script == "" {
				return fmt.Errorf("tool %s: endpoint type rpa requires script", t.ID)
			}
		default:
			return fmt.Errorf("tool %s: endpoint.type must be %q or %q", t.ID, EndpointHTTP, EndpointRPA)
		}
		if t.Endpoint.TimeoutMs != 0 && t.Endpoint.TimeoutMs < 1 {
			return fmt.Errorf("tool %s: endpoint.timeout_ms must be >= 1", t.ID)
		}
	}
	return nil
}

// Document is the on-disk shape of a registry document: a batch of tools
// plus the timestamp of their last update.
type Document struct {
	Tools     []Tool    `json:"tools" yaml:"tools"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Snapshot is an immutable, point-in-time view of the registry. Readers
// hold a reference to one Snapshot for the duration of a single decision;
// reloads never mutate a Snapshot in place, they publish a new one.
type Snapshot struct {
	Tools     []Tool
	UpdatedAt time.Time
}

// List returns the tools in this snapshot. Callers must not mutate the
// returned slice or its elements.
func (s *Snapshot) List() []Tool {
	if s == nil {
		return nil
	}
	return s.Tools
}
