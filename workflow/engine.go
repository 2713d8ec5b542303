package workflow

import (
	"context"
	"fmt"
	"log/slog"
)

// Public hint and internal reason codes the engine itself emits. Step hints
// belong to the step library.
const (
	HintOK              = "OK"
	HintBadRequest      = "BAD_REQUEST"
	HintVersionMismatch = "FLOW_VERSION_MISMATCH"
	HintInternalError   = "INTERNAL_ERROR"

	reasonBadToken        = "STATE_TOKEN_INVALID"
	reasonVersionMismatch = "FLOW_VERSION_MISMATCH"
)

// Engine executes workflows against a registry, pausing and resuming
// through a state codec. It holds no per-flow state: each call reconstructs
// a fresh execution instance, so one Engine serves all requests.
type Engine struct {
	registry Registry
	codec    Codec
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a structured logger. Nil keeps the engine silent.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New builds an engine. Registry and codec are required.
func New(registry Registry, codec Codec, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("nil registry")
	}
	if codec == nil {
		return nil, fmt.Errorf("nil codec")
	}
	e := &Engine{registry: registry, codec: codec}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Start resolves workflowID, builds fresh state at step 0, and runs until
// the flow halts, fails, or completes. An unknown workflow id is fatal and
// returned as an error, not a FAIL response.
func (e *Engine) Start(ctx context.Context, env Env, workflowID string, input any) (Response, error) {
	def, err := e.registry.Definition(workflowID)
	if err != nil {
		return Response{}, err
	}
	state := NewState(def.WorkflowID, def.Version)
	return e.run(ctx, env, def, state, input)
}

// Resume decodes the continuation token and continues from the embedded
// step index. Decode failures and version mismatches fail closed with a
// FAIL response carrying a distinct internal reason; the engine never
// degrades to a partial or forged state.
func (e *Engine) Resume(ctx context.Context, env Env, token string, input any) (Response, error) {
	state, err := e.codec.Decode(token)
	if err != nil {
		e.log(ctx, slog.LevelWarn, "state token rejected", "err", err)
		return Response{Status: StatusFail, Hint: HintBadRequest, Reason: reasonBadToken}, nil
	}

	def, err := e.registry.Definition(state.WorkflowID)
	if err != nil {
		return Response{}, err
	}

	// A resumed flow must never execute against an incompatible step list.
	if def.Version != state.Version {
		e.log(ctx, slog.LevelWarn, "flow version mismatch",
			"workflow", state.WorkflowID,
			"token_version", state.Version.String(),
			"registry_version", def.Version.String())
		return Response{Status: StatusFail, Hint: HintVersionMismatch, Reason: reasonVersionMismatch}, nil
	}

	if state.StepIndex > len(def.Steps) {
		return Response{Status: StatusFail, Hint: HintBadRequest, Reason: reasonBadToken}, nil
	}

	return e.run(ctx, env, def, state, input)
}

func (e *Engine) run(ctx context.Context, env Env, def Definition, state *State, input any) (Response, error) {
	bag := AsBag(state.Bag)

	i := state.StepIndex
	for i < len(def.Steps) {
		cfg := def.Steps[i]

		step, err := e.registry.Factory().Create(cfg)
		if err != nil {
			return Response{}, fmt.Errorf("workflow %s step %s: %w", def.WorkflowID, cfg.StepID, err)
		}

		res := step.Execute(ctx, env, bag, input)

		switch res.outcome {
		case outcomeOk:
			i++
			state.StepIndex = i
			continue

		case outcomeHalt:
			next := &State{
				WorkflowID: def.WorkflowID,
				Version:    def.Version,
				StepIndex:  i + 1,
				Bag:        state.Bag,
			}

			// A step may request a switch by leaving the next workflow id
			// in the bag; the halt token then binds to that definition at
			// step 0 with the bag preserved.
			if nextID, err := bag.String(KeyNextWorkflow); err == nil {
				bag.Delete(KeyNextWorkflow)
				nextDef, defErr := e.registry.Definition(nextID)
				if defErr != nil {
					return Response{}, fmt.Errorf("workflow switch from %s: %w", def.WorkflowID, defErr)
				}
				next.WorkflowID = nextDef.WorkflowID
				next.Version = nextDef.Version
				next.StepIndex = 0
			}

			token, err := e.codec.Encode(next)
			if err != nil {
				return Response{}, fmt.Errorf("encode continuation token: %w", err)
			}

			e.log(ctx, slog.LevelDebug, "flow halted",
				"workflow", next.WorkflowID, "step", cfg.StepID, "hint", res.Hint)
			return Response{Status: StatusHalt, Token: token, Hint: res.Hint, Payload: res.Payload}, nil

		case outcomeFail:
			// Bag and state are discarded; only the public hint leaves.
			e.log(ctx, slog.LevelInfo, "flow failed",
				"workflow", def.WorkflowID, "step", cfg.StepID, "reason", res.Reason)
			return Response{Status: StatusFail, Hint: res.Hint, Reason: res.Reason}, nil

		default:
			return Response{Status: StatusFail, Hint: HintInternalError, Reason: "UNKNOWN_STEP_RESULT"}, nil
		}
	}

	e.log(ctx, slog.LevelDebug, "flow done", "workflow", def.WorkflowID)
	return Response{Status: StatusDone, Hint: HintOK, Payload: state.Bag, Bag: state.Bag}, nil
}

func (e *Engine) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Log(ctx, level, msg, args...)
}
