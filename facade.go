package idp

import (
	"context"
	"log/slog"
	"time"

	"github.com/ppcloud/idp/audit"
	"github.com/ppcloud/idp/steps"
	"github.com/ppcloud/idp/workflow"
)

// FlowStatus is the outward status of one flow call.
type FlowStatus string

const (
	// StatusOK means the flow completed; Data holds the outcome.
	StatusOK FlowStatus = "OK"
	// StatusNeedAction means the flow paused; resume with FlowToken.
	StatusNeedAction FlowStatus = "NEED_ACTION"
	// StatusReject means the flow aborted. Only the generic hint leaves.
	StatusReject FlowStatus = "REJECT"
)

// RequestMeta carries the request facts every flow call needs. Transports
// fill it from headers and connection state.
type RequestMeta struct {
	TenantID          string
	ClientID          string
	IP                string
	UserAgent         string
	DeviceFingerprint string
}

// FlowResult is the outward result of one flow call. Internal reason codes
// are stripped here; they reach the audit trail only.
type FlowResult struct {
	Status FlowStatus `json:"status"`
	Hint   string     `json:"hint,omitempty"`
	// FlowToken is the continuation token, set on NEED_ACTION.
	FlowToken string         `json:"flowToken,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// AuthFlows is the flow facade: it resolves the entry workflow per tenant
// and client, runs the engine, and shapes engine responses for transport.
type AuthFlows struct {
	engine   *workflow.Engine
	resolver Resolver
	audit    *audit.Dispatcher
	logger   *slog.Logger
}

// NewAuthFlows wires a facade. Engine and resolver are required; audit and
// logger may be nil.
func NewAuthFlows(engine *workflow.Engine, resolver Resolver, dispatcher *audit.Dispatcher, logger *slog.Logger) (*AuthFlows, error) {
	if engine == nil {
		return nil, errFlowsNilEngine
	}
	if resolver == nil {
		return nil, errFlowsNilResolver
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthFlows{engine: engine, resolver: resolver, audit: dispatcher, logger: logger}, nil
}

// Register starts a registration flow.
func (f *AuthFlows) Register(ctx context.Context, meta RequestMeta, in steps.RegisterInput) (FlowResult, error) {
	return f.start(ctx, meta, FlowRegister, in)
}

// RegisterVerify answers the registration OTP challenge. On success the
// result carries the issued token pair.
func (f *AuthFlows) RegisterVerify(ctx context.Context, meta RequestMeta, flowToken string, in steps.VerifyCodeInput) (FlowResult, error) {
	return f.Resume(ctx, meta, flowToken, in)
}

// LoginIdentify starts a login flow. The result names the next factor.
func (f *AuthFlows) LoginIdentify(ctx context.Context, meta RequestMeta, in steps.LoginIdentifyInput) (FlowResult, error) {
	return f.start(ctx, meta, FlowLogin, in)
}

// LoginPassword continues a login flow with the password factor.
func (f *AuthFlows) LoginPassword(ctx context.Context, meta RequestMeta, flowToken string, in steps.LoginPasswordInput) (FlowResult, error) {
	return f.Resume(ctx, meta, flowToken, in)
}

// ResetStart starts a password reset flow.
func (f *AuthFlows) ResetStart(ctx context.Context, meta RequestMeta, in steps.ResetStartInput) (FlowResult, error) {
	return f.start(ctx, meta, FlowReset, in)
}

// ResetVerify answers the reset OTP challenge and yields a one-time reset
// token.
func (f *AuthFlows) ResetVerify(ctx context.Context, meta RequestMeta, flowToken string, in steps.VerifyCodeInput) (FlowResult, error) {
	return f.Resume(ctx, meta, flowToken, in)
}

// ResetCommit redeems the reset token and sets the new password.
func (f *AuthFlows) ResetCommit(ctx context.Context, meta RequestMeta, flowToken string, in steps.ResetCommitInput) (FlowResult, error) {
	return f.Resume(ctx, meta, flowToken, in)
}

// Resume continues any halted flow from its continuation token. The typed
// methods above are thin wrappers; transports with custom workflows call
// this directly.
func (f *AuthFlows) Resume(ctx context.Context, meta RequestMeta, flowToken string, input any) (FlowResult, error) {
	resp, err := f.engine.Resume(ctx, f.env(meta), flowToken, input)
	if err != nil {
		return FlowResult{}, err
	}
	return f.shape(ctx, meta, audit.EventFlowResume, resp), nil
}

func (f *AuthFlows) start(ctx context.Context, meta RequestMeta, kind FlowKind, input any) (FlowResult, error) {
	workflowID, err := f.resolver.Resolve(meta.TenantID, meta.ClientID, kind)
	if err != nil {
		return FlowResult{}, err
	}

	resp, err := f.engine.Start(ctx, f.env(meta), workflowID, input)
	if err != nil {
		return FlowResult{}, err
	}
	return f.shape(ctx, meta, audit.EventFlowStart, resp), nil
}

func (f *AuthFlows) env(meta RequestMeta) workflow.Env {
	return workflow.Env{
		TenantID:          meta.TenantID,
		ClientID:          meta.ClientID,
		IP:                meta.IP,
		UserAgent:         meta.UserAgent,
		DeviceFingerprint: meta.DeviceFingerprint,
		Now:               time.Now(),
	}
}

// shape converts an engine response into the transport result and emits the
// matching audit event. The internal reason never crosses this line.
func (f *AuthFlows) shape(ctx context.Context, meta RequestMeta, eventType string, resp workflow.Response) FlowResult {
	switch resp.Status {
	case workflow.StatusDone:
		f.emit(ctx, meta, doneEventType(resp.Bag), true, "", resp.Bag)
		return FlowResult{Status: StatusOK, Hint: resp.Hint, Data: doneData(resp.Bag)}

	case workflow.StatusHalt:
		if resp.Hint == steps.HintNeedVerifyCode {
			eventType = audit.EventOTPSent
		}
		f.emit(ctx, meta, eventType, true, "", nil)
		return FlowResult{Status: StatusNeedAction, Hint: resp.Hint, FlowToken: resp.Token, Data: resp.Payload}

	default:
		f.emit(ctx, meta, rejectEventType(resp.Hint), false, resp.Reason, nil)
		return FlowResult{Status: StatusReject, Hint: resp.Hint}
	}
}

func doneEventType(bag map[string]any) string {
	if bag[workflow.KeyResult] == "PASSWORD_UPDATED" {
		return audit.EventPasswordReset
	}
	return audit.EventFlowDone
}

func rejectEventType(hint string) string {
	switch hint {
	case steps.HintLoginFailed:
		return audit.EventLoginFailed
	case steps.HintVerifyRejected:
		return audit.EventOTPRejected
	default:
		return audit.EventFlowReject
	}
}

// doneData trims the final bag to its outward keys. Flow-internal keys
// (normalized identifier, auth markers) stay behind the facade.
func doneData(bag map[string]any) map[string]any {
	if bag == nil {
		return nil
	}
	data := make(map[string]any, 3)
	for _, key := range []string{workflow.KeyTokens, workflow.KeyResult, workflow.KeyUserID} {
		if v, ok := bag[key]; ok {
			data[key] = v
		}
	}
	if len(data) == 0 {
		return nil
	}
	return data
}

func (f *AuthFlows) emit(ctx context.Context, meta RequestMeta, eventType string, success bool, reason string, bag map[string]any) {
	if f.audit == nil {
		return
	}
	userID, _ := bag[workflow.KeyUserID].(string)
	f.audit.Emit(ctx, audit.Event{
		Timestamp: time.Now(),
		EventType: eventType,
		TenantID:  meta.TenantID,
		ClientID:  meta.ClientID,
		UserID:    userID,
		IP:        meta.IP,
		Success:   success,
		Reason:    reason,
	})
}
