package bridge

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/gosuda/vrcreator/internal/domain"
	"github.com/gosuda/vrcreator/internal/scene"
)

// Executor runs one module's source against a runtime.
type Executor interface {
	Execute(ctx context.Context, rt *scene.Runtime, code string) error
}

// DefaultAllowedPackages is the stdlib subset generated modules may import.
// Filesystem, process, network and unsafe packages are left out.
var DefaultAllowedPackages = []string{ //nolint:gochecknoglobals // default allow-list
	"bytes",
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"math/rand",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
}

// YaegiExecutor interprets generated Go modules with yaegi. A module is a Go
// file that imports "creator/scene" and defines
//
//	func Load(rt *scene.Runtime) error
type YaegiExecutor struct {
	allowed map[string]bool
	stdlib  interp.Exports
}

// NewYaegiExecutor creates an executor limited to the given stdlib packages.
// A nil list means DefaultAllowedPackages.
func NewYaegiExecutor(allowed []string) *YaegiExecutor {
	if allowed == nil {
		allowed = DefaultAllowedPackages
	}
	x := &YaegiExecutor{
		allowed: make(map[string]bool, len(allowed)+1),
		stdlib:  make(interp.Exports),
	}
	for _, p := range allowed {
		x.allowed[p] = true
	}
	for k, v := range stdlib.Symbols {
		// keys look like "encoding/json/json"
		if i := strings.LastIndex(k, "/"); i > 0 && x.allowed[k[:i]] {
			x.stdlib[k] = v
		}
	}
	x.allowed[ScenePackage] = true
	return x
}

// Allowed lists importable packages, sorted.
func (x *YaegiExecutor) Allowed() []string {
	return slices.Sorted(maps.Keys(x.allowed))
}

// Execute interprets code and calls its Load function with rt. It returns
// when Load returns or ctx ends, whichever comes first; in the latter case
// the interpreted goroutine is abandoned and rt is expected to be revoked by
// the caller.
func (x *YaegiExecutor) Execute(ctx context.Context, rt *scene.Runtime, code string) error {
	pkg, err := x.checkSource(code)
	if err != nil {
		return fmt.Errorf("bridge.YaegiExecutor.Execute: %w: %w", domain.ErrExecutionFailure, err)
	}

	logger := rt.Logger()
	i := interp.New(interp.Options{
		Stdout: logger.With().Str("stream", "stdout").Logger(),
		Stderr: logger.With().Str("stream", "stderr").Logger(),
	})
	if err := i.Use(x.stdlib); err != nil {
		return fmt.Errorf("bridge.YaegiExecutor.Execute: load stdlib: %w", err)
	}
	if err := i.Use(Symbols); err != nil {
		return fmt.Errorf("bridge.YaegiExecutor.Execute: load scene symbols: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- x.run(ctx, i, pkg, code, rt)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("bridge.YaegiExecutor.Execute: %w: %w", domain.ErrExecutionFailure, err)
		}
		return nil
	case <-ctx.Done():
		log.Warn().Str("module", rt.Key()).Msg("bridge.YaegiExecutor.Execute: load abandoned")
		return fmt.Errorf("bridge.YaegiExecutor.Execute: %w: %w", domain.ErrExecutionFailure, ctx.Err())
	}
}

func (x *YaegiExecutor) run(ctx context.Context, i *interp.Interpreter, pkg, code string, rt *scene.Runtime) error {
	if _, err := i.EvalWithContext(ctx, code); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	v, err := i.EvalWithContext(ctx, pkg+".Load")
	if err != nil {
		return fmt.Errorf("Load function not found: %w", err)
	}
	load, ok := v.Interface().(func(*scene.Runtime) error)
	if !ok {
		return fmt.Errorf("Load has signature %s, want func(*scene.Runtime) error", v.Type())
	}
	return load(rt)
}

// checkSource parses the imports and returns the package name.
func (x *YaegiExecutor) checkSource(code string) (string, error) {
	f, err := parser.ParseFile(token.NewFileSet(), "module.go", code, parser.ImportsOnly)
	if err != nil {
		return "", fmt.Errorf("parse: %w", err)
	}
	var forbidden []string
	for _, imp := range f.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return "", fmt.Errorf("import %s: %w", imp.Path.Value, err)
		}
		if !x.allowed[p] {
			forbidden = append(forbidden, p)
		}
	}
	if len(forbidden) > 0 {
		return "", fmt.Errorf("forbidden imports %v (allowed: %s)", forbidden, strings.Join(x.Allowed(), ", "))
	}
	return f.Name.Name, nil
}
