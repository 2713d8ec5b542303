package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownWorkflow is returned for workflow ids the registry does not
	// hold. Fatal, not retryable.
	ErrUnknownWorkflow = errors.New("unknown workflow id")
	// ErrUnknownStepType is returned by factories for unregistered step
	// types. Fatal, not retryable.
	ErrUnknownStepType = errors.New("unknown step type")
)

// Env carries the request-scoped facts every step in one execution shares.
// Services (stores, hashers, token issuance) are injected into steps at
// construction time instead; Env is data only.
type Env struct {
	TenantID          string
	ClientID          string
	IP                string
	UserAgent         string
	DeviceFingerprint string
	Now               time.Time
}

// Step is one pluggable unit of a workflow. Implementations must be safe
// for concurrent use: one Step value serves all requests.
type Step interface {
	Execute(ctx context.Context, env Env, bag Bag, input any) StepResult
}

// StepConfig configures one node of a definition. Params are step-specific
// knobs (TTLs, policy switches); StepID names the node for audit output.
type StepConfig struct {
	StepID   string
	StepType string
	Params   map[string]any
}

// IntParam reads an integer param, tolerating the numeric types a config
// loader may produce.
func (c StepConfig) IntParam(key string, def int) int {
	switch v := c.Params[key].(type) {
	case nil:
		return def
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// StringParam reads a string param with a default.
func (c StepConfig) StringParam(key, def string) string {
	if v, ok := c.Params[key].(string); ok {
		return v
	}
	return def
}

// BoolParam reads a bool param with a default.
func (c StepConfig) BoolParam(key string, def bool) bool {
	if v, ok := c.Params[key].(bool); ok {
		return v
	}
	return def
}

// Definition is the immutable configuration of one workflow: an id, a
// version, and an ordered step list.
type Definition struct {
	WorkflowID string
	Version    Version
	Steps      []StepConfig
}

// Factory resolves a StepConfig into an executable Step. It is the single
// dispatch point for the step library; no reflection, no dynamic loading.
type Factory interface {
	Create(cfg StepConfig) (Step, error)
}

// Registry maps workflow ids to definitions and exposes the step factory
// used to run them.
type Registry interface {
	Definition(workflowID string) (Definition, error)
	Factory() Factory
}

// FixedRegistry is a code-defined registry built once at process start and
// immutable afterwards. A database-backed registry is a drop-in replacement
// of the Registry interface.
type FixedRegistry struct {
	defs    map[string]Definition
	factory Factory
}

// NewFixedRegistry indexes defs by workflow id. Duplicate ids are an error.
func NewFixedRegistry(factory Factory, defs ...Definition) (*FixedRegistry, error) {
	if factory == nil {
		return nil, errors.New("nil step factory")
	}

	m := make(map[string]Definition, len(defs))
	for _, def := range defs {
		if def.WorkflowID == "" {
			return nil, errors.New("definition missing workflow id")
		}
		if len(def.Steps) == 0 {
			return nil, fmt.Errorf("workflow %s has no steps", def.WorkflowID)
		}
		if _, dup := m[def.WorkflowID]; dup {
			return nil, fmt.Errorf("duplicate workflow id %s", def.WorkflowID)
		}
		m[def.WorkflowID] = def
	}

	return &FixedRegistry{defs: m, factory: factory}, nil
}

func (r *FixedRegistry) Definition(workflowID string) (Definition, error) {
	def, ok := r.defs[workflowID]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}
	return def, nil
}

func (r *FixedRegistry) Factory() Factory {
	return r.factory
}

// Workflows returns the registered workflow ids, unordered.
func (r *FixedRegistry) Workflows() []string {
	out := make([]string, 0, len(r.defs))
	for id := range r.defs {
		out = append(out, id)
	}
	return out
}
