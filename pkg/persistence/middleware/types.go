// Package middleware provides composable wrappers around the Store
// port that add behavior to persistence without touching the backends.
package middleware

import "github.com/aretw0/quartet/pkg/ports"

// Middleware allows wrapping a Store to add behavior.
type Middleware func(ports.Store) ports.Store

// Chain composes middlewares so the first listed runs outermost on
// every call.
func Chain(mws ...Middleware) Middleware {
	return func(next ports.Store) ports.Store {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
