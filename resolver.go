package idp

import (
	"fmt"
	"sync"
)

// FlowKind names an authentication journey a client can start. Later stages
// of a journey are reached by resuming the continuation token, never by a
// second resolution, so only entry points are kinds.
type FlowKind string

const (
	FlowRegister FlowKind = "REGISTER"
	FlowLogin    FlowKind = "LOGIN"
	FlowReset    FlowKind = "RESET"
)

// Resolver picks the entry workflow for a tenant, client, and flow kind.
// This is the per-tenant customization point: different clients of the same
// tenant may enter through different workflow variants.
type Resolver interface {
	Resolve(tenantID, clientID string, kind FlowKind) (string, error)
}

type flowKey struct {
	tenantID string
	clientID string
	kind     FlowKind
}

// MapResolver is an in-memory Resolver. Lookup tries the exact
// (tenant, client, kind) entry first, then falls back to the tenant's "*"
// client wildcard. No match is ErrFlowNotConfigured.
type MapResolver struct {
	mu      sync.RWMutex
	entries map[flowKey]string
}

// NewMapResolver returns an empty resolver.
func NewMapResolver() *MapResolver {
	return &MapResolver{entries: make(map[flowKey]string)}
}

// Set maps (tenantID, clientID, kind) to a workflow id. Use clientID "*"
// for the tenant-wide default.
func (r *MapResolver) Set(tenantID, clientID string, kind FlowKind, workflowID string) *MapResolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[flowKey{tenantID, clientID, kind}] = workflowID
	return r
}

func (r *MapResolver) Resolve(tenantID, clientID string, kind FlowKind) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.entries[flowKey{tenantID, clientID, kind}]; ok {
		return id, nil
	}
	if id, ok := r.entries[flowKey{tenantID, "*", kind}]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: tenant=%s client=%s kind=%s", ErrFlowNotConfigured, tenantID, clientID, kind)
}

// StaticResolver maps each flow kind to one workflow for every tenant and
// client. The builder installs it when no resolver is given.
type StaticResolver map[FlowKind]string

func (r StaticResolver) Resolve(tenantID, clientID string, kind FlowKind) (string, error) {
	if id, ok := r[kind]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: kind=%s", ErrFlowNotConfigured, kind)
}

// DefaultResolver routes every tenant to the built-in workflow set.
func DefaultResolver() StaticResolver {
	return StaticResolver{
		FlowRegister: WFRegisterStartV1,
		FlowLogin:    WFLoginIdentifyV1,
		FlowReset:    WFResetStartV1,
	}
}
