package events

import "github.com/expr-lang/expr"

// predicateEnv is the evaluation environment exposed to compiled numeric
// predicates: the slice's current value, the event's stored payload
// threshold, and (for DEADBAND) the last-notified value.
type predicateEnv struct {
	Current float64
	Payload float64
	Last    float64
}

type compiledPredicate struct {
	run func(predicateEnv) (bool, error)
}

// compilePredicate compiles the numeric comparison kinds (EQUAL, GREATER,
// LESS, DEADBAND) once at event_add time, grounded on the teacher's use of
// expr-lang/expr for derived-metric expressions. WRITE/CHANGE/SET/RESET need
// no expression and compile to nil.
func compilePredicate(kind Kind) (*compiledPredicate, error) {
	var code string
	switch kind {
	case Equal:
		code = "Current == Payload"
	case Greater:
		code = "Current > Payload"
	case Less:
		code = "Current < Payload"
	case Deadband:
		code = "abs(Current - Last) >= Payload"
	default:
		return nil, nil
	}

	absFn := expr.Function("abs", func(params ...any) (any, error) {
		v := params[0].(float64)
		if v < 0 {
			return -v, nil
		}
		return v, nil
	})

	program, err := expr.Compile(code, expr.Env(predicateEnv{}), absFn)
	if err != nil {
		return nil, err
	}

	return &compiledPredicate{run: func(env predicateEnv) (bool, error) {
		out, err := expr.Run(program, env)
		if err != nil {
			return false, err
		}
		b, _ := out.(bool)
		return b, nil
	}}, nil
}

func (p *compiledPredicate) eval(env predicateEnv) (bool, error) {
	if p == nil {
		return false, nil
	}
	return p.run(env)
}
