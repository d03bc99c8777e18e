// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

// Invocation carries the interception-point name and the arguments of
// one intercepted call through the plugin chain. There is no runtime
// proxy to generate this from, so callers construct it explicitly at
// each interception point.
type Invocation struct {
	Target string // "executor.query", "statementHandler.prepare", ...
	Args   []any
}

// Arg returns the i-th argument, or nil if out of range.
func (inv *Invocation) Arg(i int) any {
	if i < 0 || i >= len(inv.Args) {
		return nil
	}
	return inv.Args[i]
}

// Proceed is supplied by the chain so an Interceptor can call onward
// without knowing whether it is the last link.
type Proceed func(inv *Invocation) (any, error)

// Interceptor observes or replaces the behavior of one intercepted
// point named by Invocation.Target.
type Interceptor interface {
	Intercept(inv *Invocation, proceed Proceed) (any, error)
}

// InterceptorChain runs registered interceptors in registration order,
// each wrapping the next, with the innermost Proceed call reaching the
// real implementation.
type InterceptorChain struct {
	interceptors []Interceptor
}

func NewInterceptorChain() *InterceptorChain { return &InterceptorChain{} }

func (c *InterceptorChain) Add(i Interceptor) { c.interceptors = append(c.interceptors, i) }

// Wrap runs call behind every registered interceptor, the first
// registered outermost, and returns the result that comes back out of
// the outermost interceptor.
func (c *InterceptorChain) Wrap(target string, args []any, call func(inv *Invocation) (any, error)) (any, error) {
	inv := &Invocation{Target: target, Args: args}
	next := call
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		interceptor := c.interceptors[i]
		prev := next
		next = func(inv *Invocation) (any, error) { return interceptor.Intercept(inv, prev) }
	}
	return next(inv)
}
