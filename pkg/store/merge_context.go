package store

// MergeContext replaces the source's process-wide "importing" flag: bulk operations that want subscriber/callback fanout suppressed
// pass a context with SuppressFanout set, instead of mutating global
// state. A nil context means "fanout enabled" (the default for ordinary
// local writes).
type MergeContext struct {
	SuppressFanout bool
}

func fanoutEnabled(ctx *MergeContext) bool {
	return ctx == nil || !ctx.SuppressFanout
}
