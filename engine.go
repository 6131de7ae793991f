package formstage

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"

	"github.com/davidroman0O/formstage/store"
)

// CategorySeed describes a category created the first time the category collection is empty.
type CategorySeed struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// env is the state shared by the stores of one Engine.
type env struct {
	// mu serializes read-modify-write cycles against the repository.
	mu deadlock.Mutex

	repo       Repository
	logger     Logger
	middleware []Middleware
	now        func() time.Time
	newID      func(prefix string) string
	metrics    *Metrics
	publisher  string
	seeds      []CategorySeed
	// sessions numbers the sessions opened on the engine.
	sessions atomic.Uint64
}

func (e *env) run(ctx context.Context, name string, fn func(ctx context.Context, op *Operation) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	op := &Operation{Name: name, Timestamp: e.now()}

	handler := chain(func(ctx context.Context, op *Operation, _ Logger) error {
		return fn(ctx, op)
	}, e.middleware)

	return handler(ctx, op, e.logger)
}

func defaultID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// Engine composes the stage, field and version stores over one Repository.
type Engine struct {
	env *env

	// Stages manages categories and their ordered stages.
	Stages *StageStore
	// Fields holds the editable field drafts.
	Fields *FieldStore
	// Versions manages published form snapshots.
	Versions *VersionStore
}

// Option configures an Engine
type Option func(*env)

// WithLogger sets the logger used by the engine and its middleware
func WithLogger(logger Logger) Option {
	return func(e *env) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMiddleware adds middleware to every mutating operation
func WithMiddleware(middleware ...Middleware) Option {
	return func(e *env) {
		e.middleware = append(e.middleware, middleware...)
	}
}

// WithAuditSink notifies sink about every successful operation
func WithAuditSink(sink AuditSink) Option {
	return func(e *env) {
		e.middleware = append(e.middleware, AuditMiddleware(sink))
	}
}

// WithMetrics records operation metrics and storage recoveries on m
func WithMetrics(m *Metrics) Option {
	return func(e *env) {
		e.metrics = m
		e.middleware = append(e.middleware, m.Middleware())
	}
}

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(e *env) {
		e.now = now
	}
}

// WithIDGenerator overrides how identifiers are generated. The generator receives the
// kind prefix ("cat", "stage", "field", "ver").
func WithIDGenerator(gen func(prefix string) string) Option {
	return func(e *env) {
		e.newID = gen
	}
}

// WithDefaultCategories seeds the given categories when no category exists yet
func WithDefaultCategories(seeds ...CategorySeed) Option {
	return func(e *env) {
		e.seeds = append(e.seeds, seeds...)
	}
}

// WithPublisher sets the publisher identity recorded on versions when the caller gives none
func WithPublisher(name string) Option {
	return func(e *env) {
		e.publisher = strings.TrimSpace(name)
	}
}

// New creates an engine persisting to backend through a KVRepository.
func New(backend store.Backend, opts ...Option) *Engine {
	e := newEnv(opts)
	repo := NewKVRepository(backend, e.logger)
	if e.metrics != nil {
		repo.OnCorrupt = func(key string, _ error) { e.metrics.RecordCorrupt(key) }
	}
	e.repo = repo
	return assemble(e)
}

// NewWithRepository creates an engine over a custom Repository.
func NewWithRepository(repo Repository, opts ...Option) *Engine {
	e := newEnv(opts)
	if kv, ok := repo.(*KVRepository); ok && e.metrics != nil && kv.OnCorrupt == nil {
		kv.OnCorrupt = func(key string, _ error) { e.metrics.RecordCorrupt(key) }
	}
	e.repo = repo
	return assemble(e)
}

func newEnv(opts []Option) *env {
	e := &env{
		logger:     NewDefaultLogger(),
		middleware: []Middleware{},
		now:        time.Now,
		newID:      defaultID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func assemble(e *env) *Engine {
	stages := &StageStore{env: e}
	fields := &FieldStore{env: e, stages: stages, drafts: make(map[string]*draft)}
	versions := &VersionStore{env: e, stages: stages, fields: fields}
	return &Engine{
		env:      e,
		Stages:   stages,
		Fields:   fields,
		Versions: versions,
	}
}

// Use adds middleware to the engine's middleware chain. Call it before the engine is shared
// between goroutines.
func (e *Engine) Use(middleware ...Middleware) {
	e.env.middleware = append(e.env.middleware, middleware...)
}

// Repository returns the repository the engine persists to.
func (e *Engine) Repository() Repository {
	return e.env.repo
}

// Logger returns the engine logger.
func (e *Engine) Logger() Logger {
	return e.env.logger
}
