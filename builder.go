package idp

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/ppcloud/idp/audit"
	"github.com/ppcloud/idp/identifier"
	"github.com/ppcloud/idp/jwt"
	"github.com/ppcloud/idp/password"
	"github.com/ppcloud/idp/steps"
	"github.com/ppcloud/idp/store"
	"github.com/ppcloud/idp/token"
	"github.com/ppcloud/idp/userdata"
	"github.com/ppcloud/idp/workflow"
)

// IDP is the assembled identity provider. Build one through [Builder];
// everything it exposes is safe for concurrent use.
type IDP struct {
	// Flows runs the authentication journeys.
	Flows *AuthFlows
	// Tokens owns the refresh/access lifecycle directly, for transports
	// that expose refresh and revocation endpoints.
	Tokens *token.Service
	// Store is the underlying refresh store, exposed for health checks.
	Store *store.RefreshStore

	audit     *audit.Dispatcher
	ownsRedis bool
	redis     redis.UniversalClient
}

// Close drains the audit dispatcher and closes the Redis client if the
// builder created it. A client passed in through WithRedis stays open.
func (p *IDP) Close() error {
	p.audit.Close()
	if p.ownsRedis && p.redis != nil {
		return p.redis.Close()
	}
	return nil
}

// Builder assembles an [IDP] step by step. Zero or more With calls, then
// Build. The zero Builder is not usable; start from [New].
type Builder struct {
	cfg       Config
	cfgSet    bool
	redis     redis.UniversalClient
	users     userdata.Access
	sender    steps.OTPSender
	sink      audit.Sink
	logger    *slog.Logger
	resolver  Resolver
	extraDefs []workflow.Definition
}

// New starts a builder.
func New() *Builder {
	return &Builder{}
}

// WithConfig sets the full configuration. Required.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	b.cfgSet = true
	return b
}

// WithRedis supplies an existing Redis client. Without it the builder
// dials Config.Redis and owns the connection.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserData supplies the user data port. Required.
func (b *Builder) WithUserData(users userdata.Access) *Builder {
	b.users = users
	return b
}

// WithSender supplies the OTP delivery channel. Defaults to the logging
// dev sender.
func (b *Builder) WithSender(sender steps.OTPSender) *Builder {
	b.sender = sender
	return b
}

// WithAuditSink supplies the audit sink. Defaults to structured log output.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.sink = sink
	return b
}

// WithLogger supplies the logger shared by every component.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithResolver supplies a per-tenant workflow resolver. Defaults to the
// built-in workflow set for every tenant.
func (b *Builder) WithResolver(resolver Resolver) *Builder {
	b.resolver = resolver
	return b
}

// WithWorkflows registers additional workflow definitions alongside the
// built-in set. Their step types must exist in the built-in step library.
func (b *Builder) WithWorkflows(defs ...workflow.Definition) *Builder {
	b.extraDefs = append(b.extraDefs, defs...)
	return b
}

// Build validates the configuration, wires every component, and returns a
// ready IDP.
func (b *Builder) Build() (*IDP, error) {
	if !b.cfgSet {
		return nil, fmt.Errorf("%w: config", ErrBuilderIncomplete)
	}
	if b.users == nil {
		return nil, fmt.Errorf("%w: user data access", ErrBuilderIncomplete)
	}
	if err := b.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	redisClient := b.redis
	ownsRedis := false
	if redisClient == nil {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     b.cfg.Redis.Addr,
			Password: b.cfg.Redis.Password,
			DB:       b.cfg.Redis.DB,
		})
		ownsRedis = true
	}

	sink := b.sink
	if sink == nil {
		sink = audit.NewSlogSink(logger)
	}
	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    b.cfg.Audit.Enabled,
		BufferSize: b.cfg.Audit.BufferSize,
		DropIfFull: b.cfg.Audit.DropIfFull,
	}, sink)

	manager, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(b.cfg.JWT.SigningMethod),
		PrivateKey:    []byte(b.cfg.JWT.PrivateKey),
		PublicKey:     []byte(b.cfg.JWT.PublicKey),
		Issuer:        b.cfg.JWT.Issuer,
		Leeway:        b.cfg.JWT.Leeway,
		KeyID:         b.cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt manager: %w", err)
	}

	refreshStore := store.NewRefreshStore(redisClient, b.cfg.Redis.KeyPrefix, b.cfg.Redis.OpTimeout)

	tokens, err := token.NewService(refreshStore, manager, token.Config{
		AccessTTL:             b.cfg.Token.AccessTTL,
		RefreshTTL:            b.cfg.Token.RefreshTTL,
		MaxPerDevice:          b.cfg.Token.MaxPerDevice,
		EnableAccessBlacklist: b.cfg.Token.EnableAccessBlacklist,
	}, token.WithLogger(logger), token.WithAudit(dispatcher))
	if err != nil {
		return nil, fmt.Errorf("token service: %w", err)
	}

	passwords, err := password.NewDefaultDelegating()
	if err != nil {
		return nil, fmt.Errorf("password hashers: %w", err)
	}

	sender := b.sender
	if sender == nil {
		sender = steps.LogSender{Logger: logger}
	}

	factory, err := steps.NewFactory(steps.Deps{
		Users:      b.users,
		Normalizer: identifier.NewDefault(),
		Passwords:  passwords,
		Tokens:     tokens,
		Sender:     sender,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("step factory: %w", err)
	}

	defs := append(builtinDefinitions(b.cfg.OTP), b.extraDefs...)
	registry, err := workflow.NewFixedRegistry(factory, defs...)
	if err != nil {
		return nil, fmt.Errorf("workflow registry: %w", err)
	}

	codec, err := workflow.NewHMACCodec([]byte(b.cfg.State.Secret))
	if err != nil {
		return nil, fmt.Errorf("state codec: %w", err)
	}

	engine, err := workflow.New(registry, codec, workflow.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("workflow engine: %w", err)
	}

	resolver := b.resolver
	if resolver == nil {
		resolver = DefaultResolver()
	}

	flows, err := NewAuthFlows(engine, resolver, dispatcher, logger)
	if err != nil {
		return nil, err
	}

	return &IDP{
		Flows:     flows,
		Tokens:    tokens,
		Store:     refreshStore,
		audit:     dispatcher,
		ownsRedis: ownsRedis,
		redis:     redisClient,
	}, nil
}
