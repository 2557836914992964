package logger

import "context"

type ctxKey struct{}

// Fields carries log fields threaded through a context.Context so that
// DebugCtx/InfoCtx/WarnCtx/ErrorCtx can stamp them automatically onto every
// call made while servicing one dentry operation.
type Fields struct {
	Dentry    string
	Partition string
	Queue     string
}

const (
	KeyDentry    = "dentry"
	KeyPartition = "partition"
	KeyQueue     = "queue"
)

// WithFields returns a new context carrying f, replacing any fields already
// present.
func WithFields(ctx context.Context, f Fields) context.Context {
	return context.WithValue(ctx, ctxKey{}, f)
}

// WithDentry is a convenience wrapper for the common case of stamping just
// the dentry name.
func WithDentry(ctx context.Context, dentry string) context.Context {
	f := FromContext(ctx)
	if f == nil {
		return WithFields(ctx, Fields{Dentry: dentry})
	}
	next := *f
	next.Dentry = dentry
	return WithFields(ctx, next)
}

// FromContext returns the Fields stamped on ctx, or nil if none.
func FromContext(ctx context.Context) *Fields {
	f, ok := ctx.Value(ctxKey{}).(Fields)
	if !ok {
		return nil
	}
	return &f
}
