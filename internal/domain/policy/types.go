// Package policy contains domain types for tenant-scoped capability policy:
// allow/deny lists, time windows, and pre/post schema checks.
package policy

import "encoding/json"

// Code is the closed alphabet of policy decision codes.
type Code string

const (
	CodeTenantDenied        Code = "TENANT_DENIED"
	CodeCapabilityDenied    Code = "CAPABILITY_DENIED"
	CodeTimeDenied          Code = "TIME_DENIED"
	CodeInputInvalid        Code = "INPUT_INVALID"
	CodePostConditionFailed Code = "POST_CONDITION_FAILED"
)

// PreDecision is the tagged-variant result of a pre-check: either allowed,
// or denied with a Code from the closed alphabet and an optional detail.
type PreDecision struct {
	Allow  bool
	Code   Code
	Detail string
}

// Allowed constructs an allowing PreDecision.
func Allowed() PreDecision { return PreDecision{Allow: true} }

// Denied constructs a denying PreDecision with the given code and detail.
func Denied(code Code, detail string) PreDecision {
	return PreDecision{Allow: false, Code: code, Detail: detail}
}

// PostDecision is the tagged-variant result of a post-check.
type PostDecision struct {
	Pass   bool
	Code   Code
	Detail string
}

// Passed constructs a passing PostDecision.
func Passed() PostDecision { return PostDecision{Pass: true} }

// Failed constructs a failing PostDecision. In practice only
// CodePostConditionFailed is ever passed here, but the field stays general
// for symmetry with PreDecision.
func Failed(code Code, detail string) PostDecision {
	return PostDecision{Pass: false, Code: code, Detail: detail}
}

// WindowSpec holds the timezone and allow-window strings for a tenant.
// Window grammar: "<day-spec> <HH:MM>-<HH:MM>" or "<day-spec>" (whole day),
// where day-spec is a three-letter weekday or an inclusive range "Mon-Fri".
type WindowSpec struct {
	TZ    string   `json:"tz,omitempty" yaml:"tz,omitempty"`
	Allow []string `json:"allow,omitempty" yaml:"allow,omitempty"`
}

// TenantPolicy is the resolved rule set for one tenant (or the default).
type TenantPolicy struct {
	AllowCapabilities []string                   `json:"allowCapabilities,omitempty" yaml:"allowCapabilities,omitempty"`
	DenyCapabilities  []string                   `json:"denyCapabilities,omitempty" yaml:"denyCapabilities,omitempty"`
	TimeWindows       *WindowSpec                `json:"timeWindows,omitempty" yaml:"timeWindows,omitempty"`
	PreSchemas        map[string]json.RawMessage `json:"preSchemas,omitempty" yaml:"preSchemas,omitempty"`
	PostSchemas       map[string]json.RawMessage `json:"postSchemas,omitempty" yaml:"postSchemas,omitempty"`
}

// Document is the on-disk policy document: schemaVersion, an optional
// default policy, and a per-tenant override map.
type Document struct {
	SchemaVersion string                  `json:"schemaVersion" yaml:"schemaVersion"`
	Default       *TenantPolicy           `json:"default,omitempty" yaml:"default,omitempty"`
	Tenants       map[string]TenantPolicy `json:"tenants,omitempty" yaml:"tenants,omitempty"`
}

// Resolve returns the effective TenantPolicy for a tenant id, following the
// precedence tenants[tenant] ?? default ?? empty.
func (d *Document) Resolve(tenant string) TenantPolicy {
	if d == nil {
		return TenantPolicy{}
	}
	if tenant != "" {
		if tp, ok := d.Tenants[tenant]; ok {
			return tp
		}
	}
	if d.Default != nil {
		return *d.Default
	}
	return TenantPolicy{}
}
