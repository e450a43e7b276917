package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/file"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/abdul-hamid-achik/callspec/packages/core/env"
)

// ErrDisposed is returned when a disposed context is used.
var ErrDisposed = errors.New("sandbox context disposed")

// ScriptError is a failing script line.
type ScriptError struct {
	Line    int
	Source  string
	Message string
	Err     error
}

func (e *ScriptError) Error() string {
	return e.Message
}

func (e *ScriptError) Unwrap() error { return e.Err }

// DefaultProgramCacheSize bounds the number of compiled lines kept by an
// ExprExecutor. Resolved script lines can embed generated values, so the
// set of distinct lines grows with every run.
const DefaultProgramCacheSize = 1024

// ExprExecutor runs scripts with expr-lang. Compiled lines are kept in an
// LRU cache.
type ExprExecutor struct {
	programs *lru.Cache[string, *vm.Program]
}

type ExprOption func(*exprOptions)

type exprOptions struct {
	cacheSize int
}

// WithProgramCacheSize sets how many compiled lines are kept.
func WithProgramCacheSize(n int) ExprOption {
	return func(o *exprOptions) {
		o.cacheSize = n
	}
}

func NewExprExecutor(opts ...ExprOption) *ExprExecutor {
	o := exprOptions{cacheSize: DefaultProgramCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cacheSize <= 0 {
		o.cacheSize = DefaultProgramCacheSize
	}
	// only fails for a non-positive size
	programs, _ := lru.New[string, *vm.Program](o.cacheSize)
	return &ExprExecutor{programs: programs}
}

// CachedPrograms returns the number of compiled lines currently cached.
func (x *ExprExecutor) CachedPrograms() int {
	return x.programs.Len()
}

func (x *ExprExecutor) NewContext(bundle Bundle) (Context, error) {
	environment := env.New()
	environment.Replace(bundle.Environment)
	return &exprContext{
		executor:    x,
		bundle:      bundle,
		environment: environment,
	}, nil
}

func (x *ExprExecutor) compile(line string) (*vm.Program, error) {
	if p, ok := x.programs.Get(line); ok {
		return p, nil
	}
	program, err := expr.Compile(line)
	if err != nil {
		return nil, err
	}
	x.programs.Add(line, program)
	return program, nil
}

type exprContext struct {
	executor    *ExprExecutor
	bundle      Bundle
	environment *env.Environment

	mu       sync.Mutex
	console  []string
	disposed bool
}

func (c *exprContext) Execute(ctx context.Context, lines []string) (*Result, error) {
	c.mu.Lock()
	disposed := c.disposed
	c.mu.Unlock()
	if disposed {
		return nil, ErrDisposed
	}

	vars := c.vars()
	for i, raw := range lines {
		line := normalizeLine(raw)
		if line == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return c.result(), err
		}

		program, err := c.executor.compile(line)
		if err != nil {
			return c.result(), &ScriptError{Line: i + 1, Source: line, Message: errorMessage(err), Err: err}
		}
		if _, err := expr.Run(program, vars); err != nil {
			return c.result(), &ScriptError{Line: i + 1, Source: line, Message: errorMessage(err), Err: err}
		}
	}
	return c.result(), nil
}

func (c *exprContext) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disposed = true
	c.console = nil
}

func (c *exprContext) result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Result{
		Environment: c.environment.Items(),
		Console:     append([]string(nil), c.console...),
	}
}

func (c *exprContext) log(args ...any) any {
	parts := make([]string, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok {
			parts[i] = s
		} else {
			parts[i] = inspect(a)
		}
	}
	line := strings.Join(parts, " ")
	c.mu.Lock()
	c.console = append(c.console, line)
	c.mu.Unlock()
	return line
}

func (c *exprContext) vars() map[string]any {
	vars := map[string]any{
		"request":          c.bundle.Request,
		"response":         c.bundle.Response,
		"callback":         c.bundle.Callback,
		"requestsHistory":  c.bundle.RequestsHistory,
		"callbacksHistory": c.bundle.CallbacksHistory,
		"console":          map[string]any{"log": c.log},
		"uuid":             func() any { return uuid.NewString() },
		"expect":           Expect,
		"jsonSchema":       ValidateJSONSchema,
	}
	if c.bundle.PlainEnvironment {
		vars["environment"] = c.environment.Data()
	} else {
		vars["environment"] = c.environmentObject()
	}
	return vars
}

func (c *exprContext) environmentObject() map[string]any {
	e := c.environment
	return map[string]any{
		"get": func(key any) any {
			v, _ := e.Get(fmt.Sprint(key))
			return v
		},
		"set": func(key, value any) any {
			e.Set(fmt.Sprint(key), value)
			return value
		},
		"unset": func(key any) any {
			e.Unset(fmt.Sprint(key))
			return true
		},
		"has": func(key any) any {
			_, ok := e.Get(fmt.Sprint(key))
			return ok
		},
		"toObject": func() any {
			return e.Data()
		},
	}
}

func normalizeLine(raw string) string {
	line := strings.TrimSpace(raw)
	if strings.HasPrefix(line, "//") {
		return ""
	}
	return strings.TrimSpace(strings.TrimSuffix(line, ";"))
}

// errorMessage strips expr's source snippet from err.
func errorMessage(err error) string {
	var assertErr *AssertionError
	if errors.As(err, &assertErr) {
		return assertErr.Error()
	}
	var fileErr *file.Error
	if errors.As(err, &fileErr) {
		return fileErr.Message
	}
	return err.Error()
}
