// internal/reqstate/context.go
//
// context.Context plumbing for *State.
//
// The entry middleware stores the per-request State under an unexported
// key so downstream stages holding only *http.Request can retrieve it
// without a custom handler signature.
package reqstate

import "context"

type ctxKey struct{} // unexported, collision-proof

// WithState returns a child context carrying st.
func WithState(ctx context.Context, st *State) context.Context {
	return context.WithValue(ctx, ctxKey{}, st)
}

// FromContext returns the State stored by the entry middleware, or nil
// if it has not run.
func FromContext(ctx context.Context) *State {
	v, _ := ctx.Value(ctxKey{}).(*State)
	return v
}
