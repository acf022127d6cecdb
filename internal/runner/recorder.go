package runner

import (
	"context"
	"io"
)

// Call is a command captured by Recorder, with any stdin already drained.
type Call struct {
	Command
	Input string
}

// Recorder is an in-memory Runner for tests. It records every call and
// delegates the outcome to Handler when one is set.
type Recorder struct {
	Calls   []Call
	Handler func(Call) (*Result, error)
}

func (r *Recorder) Run(ctx context.Context, cmd Command) (*Result, error) {
	call := Call{Command: cmd}
	if cmd.Stdin != nil {
		b, err := io.ReadAll(cmd.Stdin)
		if err != nil {
			return nil, err
		}
		call.Input = string(b)
	}
	r.Calls = append(r.Calls, call)
	if r.Handler != nil {
		return r.Handler(call)
	}
	return &Result{}, nil
}

// Names returns "name arg0" for each recorded call, handy for asserting order.
func (r *Recorder) Names() []string {
	out := make([]string, 0, len(r.Calls))
	for _, c := range r.Calls {
		s := c.Name
		if len(c.Args) > 0 {
			s += " " + c.Args[0]
		}
		out = append(out, s)
	}
	return out
}
