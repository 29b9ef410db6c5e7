package service

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tirumala-karthikeya/chat-pro/internal/models"
	"github.com/tirumala-karthikeya/chat-pro/internal/repository"
	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
	"github.com/tirumala-karthikeya/chat-pro/pkg/resilience"
	"github.com/tirumala-karthikeya/chat-pro/shared/observability"
)

var displayNames = map[string]string{
	"postgres": "PostgreSQL",
	"mongo":    "MongoDB",
	"redis":    "Redis",
	"local":    "localStorage",
}

func displayName(store repository.Store) string {
	if n, ok := displayNames[store.Name()]; ok {
		return n
	}
	return store.Name()
}

// HealthInfo is the storage part of the health endpoint.
type HealthInfo struct {
	Database         string               `json:"database"`
	Version          string               `json:"version,omitempty"`
	Connected        bool                 `json:"connected"`
	Degraded         bool                 `json:"degraded"`
	ChatbotCount     int64                `json:"chatbot_count"`
	ConnectionString string               `json:"connection_string,omitempty"`
	CircuitState     string               `json:"circuit_state,omitempty"`
	Breaker          *resilience.Snapshot `json:"breaker,omitempty"`
	PrimaryError     string               `json:"primary_error,omitempty"`
	Error            string               `json:"error,omitempty"`
}

// GatewayOption configures a ChatbotGateway.
type GatewayOption func(*ChatbotGateway)

// WithPrimary sets the preferred engine. Without one every call goes to
// the local store.
func WithPrimary(store repository.Store) GatewayOption {
	return func(g *ChatbotGateway) { g.primary = store }
}

// WithBreakerConfig overrides the circuit breaker tuning.
func WithBreakerConfig(cfg resilience.Config) GatewayOption {
	return func(g *ChatbotGateway) { g.breakerCfg = cfg }
}

func WithLogger(l *logger.Logger) GatewayOption {
	return func(g *ChatbotGateway) { g.log = l }
}

func WithMetrics(m *observability.Metrics) GatewayOption {
	return func(g *ChatbotGateway) { g.metrics = m }
}

// ChatbotGateway serves chatbot CRUD from a primary engine and falls back
// to the local store, per call, when the primary is unavailable. Public
// methods never return errors: failures are logged and surface as
// negative results.
type ChatbotGateway struct {
	primary    repository.Store
	local      repository.Store
	breaker    *resilience.CircuitBreaker
	breakerCfg resilience.Config
	log        *logger.Logger
	metrics    *observability.Metrics
	tracer     trace.Tracer

	connectMu sync.Mutex
	mu        sync.RWMutex
	connected bool
	lastErr   error
}

// NewChatbotGateway builds a gateway around the local fallback store.
func NewChatbotGateway(local repository.Store, opts ...GatewayOption) *ChatbotGateway {
	g := &ChatbotGateway{
		local:      local,
		breakerCfg: resilience.DefaultConfig("primary-store"),
		log:        logger.GetGlobal(),
		metrics:    observability.NopMetrics(),
		tracer:     otel.Tracer(observability.InstrumentationName + "/gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}

	cfg := g.breakerCfg
	cfg.IsFailure = func(err error) bool { return !repository.IsDefinitive(err) }
	userHook := cfg.OnStateChange
	cfg.OnStateChange = func(name string, from, to resilience.State) {
		g.metrics.BreakerTransition(context.Background(), name, string(to))
		if userHook != nil {
			userHook(name, from, to)
		}
	}
	g.breaker = resilience.NewCircuitBreaker(cfg, g.log)
	return g
}

// Init prepares the local store and makes a first attempt at the primary.
func (g *ChatbotGateway) Init(ctx context.Context) {
	if err := g.local.Connect(ctx); err != nil {
		g.log.LogError(err, "failed to prepare local store")
	}
	if g.primary != nil && !g.ensureConnected(ctx) {
		g.log.Warn("primary store unavailable, serving from local store", "backend", g.primary.Name())
	}
}

// Close releases both engines.
func (g *ChatbotGateway) Close(ctx context.Context) error {
	var errs []error
	if g.primary != nil {
		errs = append(errs, g.primary.Close(ctx))
	}
	errs = append(errs, g.local.Close(ctx))
	return errors.Join(errs...)
}

// Connected reports whether the primary handshake has succeeded.
func (g *ChatbotGateway) Connected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.connected
}

// Degraded reports whether calls are currently being served by the local
// store instead of a configured primary.
func (g *ChatbotGateway) Degraded() bool {
	if g.primary == nil {
		return false
	}
	return !g.Connected() || g.breaker.State() != resilience.StateClosed
}

// ensureConnected performs the lazy reconnect that precedes every
// operation. Attempts go through the breaker so a dead primary is not
// dialled on every request.
func (g *ChatbotGateway) ensureConnected(ctx context.Context) bool {
	if g.primary == nil {
		return false
	}
	if g.Connected() {
		return true
	}

	g.connectMu.Lock()
	defer g.connectMu.Unlock()
	if g.Connected() {
		return true
	}

	err := g.breaker.Execute(func() error { return g.primary.Connect(ctx) })
	g.mu.Lock()
	g.lastErr = err
	g.connected = err == nil
	g.mu.Unlock()

	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			g.log.LogError(err, "primary store connect failed", "backend", g.primary.Name())
		}
		return false
	}
	g.log.Info("connected to primary store", "backend", g.primary.Name())
	return true
}

func (g *ChatbotGateway) recordPrimaryErr(err error) {
	g.mu.Lock()
	g.lastErr = err
	g.mu.Unlock()
}

// execute runs fn against the primary when it is usable, otherwise (or
// after an availability failure) against the local store.
func execute[T any](ctx context.Context, g *ChatbotGateway, op string, fn func(context.Context, repository.Store) (T, error)) (T, error) {
	ctx, span := g.tracer.Start(ctx, "chatbots."+op)
	defer span.End()

	if g.ensureConnected(ctx) {
		var out T
		err := g.breaker.Execute(func() error {
			var err error
			out, err = fn(ctx, g.primary)
			return err
		})
		if err == nil || repository.IsDefinitive(err) {
			g.metrics.StorageOp(ctx, g.primary.Name(), op, nil)
			span.SetAttributes(attribute.String("storage.backend", g.primary.Name()))
			return out, err
		}

		g.recordPrimaryErr(err)
		g.metrics.StorageOp(ctx, g.primary.Name(), op, err)
		g.metrics.Failover(ctx, op)
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			g.log.LogError(err, "primary store failed, using local store", "op", op, "backend", g.primary.Name())
		}
		span.AddEvent("failover")
	}

	span.SetAttributes(attribute.String("storage.backend", g.local.Name()))
	out, err := fn(ctx, g.local)
	if err != nil && !repository.IsDefinitive(err) {
		g.metrics.StorageOp(ctx, g.local.Name(), op, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		g.metrics.StorageOp(ctx, g.local.Name(), op, nil)
	}
	return out, err
}

// List returns every chatbot, or an empty slice when no store answers.
func (g *ChatbotGateway) List(ctx context.Context) []models.Chatbot {
	bots, err := execute(ctx, g, "list", func(ctx context.Context, s repository.Store) ([]models.Chatbot, error) {
		return s.List(ctx)
	})
	if err != nil {
		g.log.LogError(err, "list chatbots failed")
		return []models.Chatbot{}
	}
	if bots == nil {
		bots = []models.Chatbot{}
	}
	return bots
}

// Outcome classifies the result of a single-record gateway call.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNotFound
	OutcomeConflict
	OutcomeInvalid
	// OutcomeUnavailable means neither store could answer.
	OutcomeUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeConflict:
		return "conflict"
	case OutcomeInvalid:
		return "invalid"
	default:
		return "unavailable"
	}
}

func outcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, repository.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, repository.ErrAlreadyExists):
		return OutcomeConflict
	case errors.Is(err, repository.ErrInvalid):
		return OutcomeInvalid
	default:
		return OutcomeUnavailable
	}
}

// GetByUniqueID returns the chatbot and whether it was found.
func (g *ChatbotGateway) GetByUniqueID(ctx context.Context, uniqueID string) (*models.Chatbot, bool) {
	bot, out := g.Lookup(ctx, uniqueID)
	return bot, out == OutcomeOK
}

// Lookup is GetByUniqueID with the reason for a miss.
func (g *ChatbotGateway) Lookup(ctx context.Context, uniqueID string) (*models.Chatbot, Outcome) {
	bot, err := execute(ctx, g, "get", func(ctx context.Context, s repository.Store) (*models.Chatbot, error) {
		return s.Get(ctx, uniqueID)
	})
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			g.log.LogError(err, "get chatbot failed", "unique_id", uniqueID)
		}
		return nil, outcomeOf(err)
	}
	return bot, OutcomeOK
}

// Create stores a new chatbot. A duplicate uniqueId is a failure.
func (g *ChatbotGateway) Create(ctx context.Context, bot models.Chatbot) bool {
	return g.Insert(ctx, bot) == OutcomeOK
}

// Insert is Create with the reason for a failure.
func (g *ChatbotGateway) Insert(ctx context.Context, bot models.Chatbot) Outcome {
	_, err := execute(ctx, g, "create", func(ctx context.Context, s repository.Store) (struct{}, error) {
		return struct{}{}, s.Create(ctx, &bot)
	})
	if err != nil {
		g.log.LogError(err, "create chatbot failed", "unique_id", bot.UniqueID)
		return outcomeOf(err)
	}
	g.log.Info("chatbot created", "unique_id", bot.UniqueID, "name", bot.Name)
	return OutcomeOK
}

// Update merges patch into the stored chatbot and returns the result.
func (g *ChatbotGateway) Update(ctx context.Context, uniqueID string, patch models.ChatbotPatch) (*models.Chatbot, bool) {
	bot, out := g.Modify(ctx, uniqueID, patch)
	return bot, out == OutcomeOK
}

// Modify is Update with the reason for a failure.
func (g *ChatbotGateway) Modify(ctx context.Context, uniqueID string, patch models.ChatbotPatch) (*models.Chatbot, Outcome) {
	bot, err := execute(ctx, g, "update", func(ctx context.Context, s repository.Store) (*models.Chatbot, error) {
		return s.Update(ctx, uniqueID, patch)
	})
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			g.log.LogError(err, "update chatbot failed", "unique_id", uniqueID)
		}
		return nil, outcomeOf(err)
	}
	return bot, OutcomeOK
}

// Delete removes a chatbot and reports whether one was removed.
func (g *ChatbotGateway) Delete(ctx context.Context, uniqueID string) bool {
	return g.Remove(ctx, uniqueID) == OutcomeOK
}

// Remove is Delete with the reason for a failure.
func (g *ChatbotGateway) Remove(ctx context.Context, uniqueID string) Outcome {
	_, err := execute(ctx, g, "delete", func(ctx context.Context, s repository.Store) (struct{}, error) {
		return struct{}{}, s.Delete(ctx, uniqueID)
	})
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		g.log.LogError(err, "delete chatbot failed", "unique_id", uniqueID)
	}
	return outcomeOf(err)
}

// Health describes the store currently answering requests.
func (g *ChatbotGateway) Health(ctx context.Context) (info HealthInfo) {
	if g.primary != nil {
		defer func() {
			snap := g.breaker.Snapshot()
			info.CircuitState = string(snap.State)
			info.Breaker = &snap
		}()
	}

	if g.ensureConnected(ctx) {
		var st repository.Stats
		err := g.breaker.Execute(func() error {
			var err error
			st, err = g.primary.Stats(ctx)
			return err
		})
		if err == nil {
			info.Database = displayName(g.primary)
			info.Version = st.Version
			info.Connected = true
			info.ChatbotCount = st.Count
			info.ConnectionString = st.Location
			info.Degraded = g.Degraded()
			return info
		}
		g.recordPrimaryErr(err)
	}

	g.mu.RLock()
	if g.lastErr != nil {
		info.PrimaryError = g.lastErr.Error()
	}
	g.mu.RUnlock()
	info.Degraded = g.primary != nil

	info.Database = displayName(g.local)
	st, err := g.local.Stats(ctx)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.Version = st.Version
	info.Connected = true
	info.ChatbotCount = st.Count
	info.ConnectionString = st.Location
	return info
}
