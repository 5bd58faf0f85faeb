package service

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"caprouter/internal/domain/policy"
)

// schemaCacheKind distinguishes pre- and post-schema cache entries so the
// same capability name in both maps doesn't collide.
type schemaCacheKind byte

const (
	kindPre schemaCacheKind = iota
	kindPost
)

// PolicyService implements policy.Service. Compiled schema validators are
// cached per (tenant, kind, capability) for the lifetime of the service,
// keyed the same way an xxhash-keyed result cache would be, simplified here
// to plain memoization since the key space is bounded by the policy
// document itself rather than by arbitrary runtime inputs.
type PolicyService struct {
	provider policy.Provider

	mu     sync.Mutex
	cache  map[uint64]*jsonschema.Schema
	errors map[uint64]error // remembers decode/compile failures so they are not retried
}

// NewPolicyService constructs a PolicyService reading from provider.
func NewPolicyService(provider policy.Provider) *PolicyService {
	return &PolicyService{
		provider: provider,
		cache:    make(map[uint64]*jsonschema.Schema),
		errors:   make(map[uint64]error),
	}
}

// PreCheck evaluates a fixed rule order: allow-list, deny-list, time
// window, then pre-schema.
func (s *PolicyService) PreCheck(tenant, capability string, input map[string]any, now time.Time) policy.PreDecision {
	tp := s.resolve(tenant)

	if len(tp.AllowCapabilities) > 0 && !contains(tp.AllowCapabilities, capability) {
		return policy.Denied(policy.CodeCapabilityDenied, "capability not in allow-list")
	}
	if contains(tp.DenyCapabilities, capability) {
		return policy.Denied(policy.CodeCapabilityDenied, "capability is denied")
	}
	if tp.TimeWindows != nil && len(tp.TimeWindows.Allow) > 0 {
		checkTime := now
		if checkTime.IsZero() {
			checkTime = time.Now()
		}
		loc := policy.ResolveLocation(tp.TimeWindows.TZ)
		if !policy.MatchesWindows(tp.TimeWindows.Allow, checkTime, loc) {
			return policy.Denied(policy.CodeTimeDenied, "outside allowed time window")
		}
	}
	if raw, ok := tp.PreSchemas[capability]; ok {
		schema, err := s.compiled(tenant, kindPre, capability, raw)
		if err != nil {
			return policy.Denied(policy.CodeInputInvalid, err.Error())
		}
		if err := schema.Validate(toInstance(input)); err != nil {
			return policy.Denied(policy.CodeInputInvalid, err.Error())
		}
	}
	return policy.Allowed()
}

// PostCheck evaluates output against the tenant's post-schema, if declared.
func (s *PolicyService) PostCheck(tenant, capability string, output map[string]any) policy.PostDecision {
	tp := s.resolve(tenant)

	raw, ok := tp.PostSchemas[capability]
	if !ok {
		return policy.Passed()
	}
	schema, err := s.compiled(tenant, kindPost, capability, raw)
	if err != nil {
		return policy.Failed(policy.CodePostConditionFailed, err.Error())
	}
	if err := schema.Validate(toInstance(output)); err != nil {
		return policy.Failed(policy.CodePostConditionFailed, err.Error())
	}
	return policy.Passed()
}

func (s *PolicyService) resolve(tenant string) policy.TenantPolicy {
	doc := s.provider.Current()
	if doc == nil {
		return policy.TenantPolicy{}
	}
	return doc.Resolve(tenant)
}

// compiled returns the cached compiled schema for (tenant, kind, capability),
// compiling and caching it on first use.
func (s *PolicyService) compiled(tenant string, kind schemaCacheKind, capability string, raw json.RawMessage) (*jsonschema.Schema, error) {
	key := schemaCacheKey(tenant, kind, capability)

	s.mu.Lock()
	defer s.mu.Unlock()

	if schema, ok := s.cache[key]; ok {
		return schema, nil
	}
	if err, ok := s.errors[key]; ok {
		return nil, err
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		err = fmt.Errorf("decode schema for %s/%s: %w", tenant, capability, err)
		s.errors[key] = err
		return nil, err
	}
	id := fmt.Sprintf("https://caprouter/schema/dynamic/%d.json", key)
	c := jsonschema.NewCompiler()
	if err := c.AddResource(id, v); err != nil {
		err = fmt.Errorf("add schema resource for %s/%s: %w", tenant, capability, err)
		s.errors[key] = err
		return nil, err
	}
	schema, err := c.Compile(id)
	if err != nil {
		err = fmt.Errorf("compile schema for %s/%s: %w", tenant, capability, err)
		s.errors[key] = err
		return nil, err
	}
	s.cache[key] = schema
	return schema, nil
}

// schemaCacheKey mixes tenant, kind, and capability into a single cache key,
// the same general approach as hashing a composite evaluation context.
func schemaCacheKey(tenant string, kind schemaCacheKind, capability string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(tenant)
	_, _ = h.Write([]byte{0, byte(kind), 0})
	_, _ = h.WriteString(capability)
	return h.Sum64()
}

func toInstance(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return map[string]any(m)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Compile-time interface verification.
var _ policy.Service = (*PolicyService)(nil)
