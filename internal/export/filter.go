package export

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.uber.org/zap"
)

// Filter gates records before they reach the durable sinks. The predicate
// is an expr-lang expression over the fields below; a record is kept when
// it evaluates to true.
//
//	role=="TAG" && kind=="RX" && latency_ms < 250
//
// A nil *Filter keeps everything.
type Filter struct {
	source  string
	program *vm.Program
	logger  *zap.Logger
	errors  uint64
}

// filterEnv declares the fields visible to predicates, for compile-time
// type checking.
func filterEnv() map[string]interface{} {
	return map[string]interface{}{
		"role":       "",
		"kind":       "",
		"seq":        uint64(0),
		"dev_ts":     uint64(0),
		"paired":     false,
		"latency_ms": float64(0),
		"note":       "",
	}
}

// NewFilter compiles the predicate. An empty source means no filtering and
// returns a nil filter. A predicate that does not compile, or that is not
// boolean, is a configuration mistake and fails startup.
func NewFilter(source string, logger *zap.Logger) (*Filter, error) {
	if source == "" {
		return nil, nil
	}

	program, err := expr.Compile(source, expr.Env(filterEnv()), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling export filter %q: %w", source, err)
	}

	return &Filter{source: source, program: program, logger: logger}, nil
}

// Keep evaluates the predicate for a record. A runtime evaluation failure
// drops the record and is logged, never propagated.
func (f *Filter) Keep(rec Record) bool {
	if f == nil {
		return true
	}

	env := map[string]interface{}{
		"role":       rec.Event.Role.String(),
		"kind":       rec.Event.Kind.String(),
		"seq":        rec.Event.Seq,
		"dev_ts":     rec.Event.DeviceTS,
		"paired":     rec.Paired,
		"latency_ms": float64(rec.Latency.Microseconds()) / 1000.0,
		"note":       rec.Note,
	}

	out, err := expr.Run(f.program, env)
	if err != nil {
		f.errors++
		f.logger.Warn("export filter evaluation failed, dropping record",
			zap.String("filter", f.source),
			zap.Uint64("seq", rec.Event.Seq),
			zap.Error(err))
		return false
	}

	keep, ok := out.(bool)
	return ok && keep
}

// Errors reports how many records were dropped by evaluation failures.
func (f *Filter) Errors() uint64 {
	if f == nil {
		return 0
	}
	return f.errors
}
