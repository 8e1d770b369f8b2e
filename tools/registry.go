package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/stategraph/types"
)

// DefaultTimeout is applied to tools registered without one.
const DefaultTimeout = 30 * time.Second

// ToolFunc defines the tool function signature.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// RateLimit limits how often a tool may start. Burst <= 0 means 1.
type RateLimit struct {
	RPS   float64
	Burst int
}

// Metadata describes a registered tool.
type Metadata struct {
	Schema    types.ToolSchema
	Timeout   time.Duration
	RateLimit *RateLimit
}

type entry struct {
	fn      ToolFunc
	meta    Metadata
	params  *types.JSONSchema
	limiter *rate.Limiter
}

// Registry 工具注册中心
type Registry struct {
	mu           sync.RWMutex
	tools        map[string]*entry
	defaultLimit *RateLimit
	logger       *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDefaultRateLimit applies limit to tools registered without their own.
func WithDefaultRateLimit(limit *RateLimit) RegistryOption {
	return func(r *Registry) { r.defaultLimit = limit }
}

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry 创建工具注册中心
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:  make(map[string]*entry),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "tool_registry"))
	return r
}

// Register adds a tool. The schema name defaults to name and must match it.
func (r *Registry) Register(name string, fn ToolFunc, meta Metadata) error {
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if fn == nil {
		return fmt.Errorf("tool %s has no function", name)
	}
	if meta.Schema.Name == "" {
		meta.Schema.Name = name
	}
	if meta.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", meta.Schema.Name, name)
	}
	if len(meta.Schema.Parameters) == 0 {
		meta.Schema.Parameters = json.RawMessage(`{"type":"object"}`)
	}
	params, err := types.ParseSchema(meta.Schema.Parameters)
	if err != nil {
		return fmt.Errorf("tool %s: invalid parameter schema: %w", name, err)
	}
	if meta.Timeout <= 0 {
		meta.Timeout = DefaultTimeout
	}

	limit := meta.RateLimit
	if limit == nil {
		limit = r.defaultLimit
	}
	var limiter *rate.Limiter
	if limit != nil && limit.RPS > 0 {
		burst := limit.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(limit.RPS), burst)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = &entry{fn: fn, meta: meta, params: params, limiter: limiter}

	r.logger.Debug("tool registered", zap.String("name", name), zap.Duration("timeout", meta.Timeout))
	return nil
}

// Unregister removes a tool.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return fmt.Errorf("tool %s not found", name)
	}
	delete(r.tools, name)
	return nil
}

// Get returns a tool and its metadata.
func (r *Registry) Get(name string) (ToolFunc, Metadata, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, Metadata{}, err
	}
	return e.fn, e.meta, nil
}

func (r *Registry) lookup(name string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %s not found", name)
	}
	return e, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, err := r.lookup(name)
	return err == nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the tool schemas sorted by name, ready for a chat request.
func (r *Registry) List() []types.ToolSchema {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]types.ToolSchema, 0, len(names))
	for _, name := range names {
		if e, ok := r.tools[name]; ok {
			schemas = append(schemas, e.meta.Schema)
		}
	}
	return schemas
}
