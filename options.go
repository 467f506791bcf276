package pal

// Option configures an Epoch.
type Option func(*Epoch)

// WithLabel attaches a debug label to the epoch. The label is carried
// onto sequenced batches and shows up in backend debug output.
func WithLabel(label string) Option {
	return func(e *Epoch) { e.label = label }
}

// WithOperationCapacity pre-allocates space for n operations, avoiding
// re-allocation for epochs of known size.
func WithOperationCapacity(n int) Option {
	return func(e *Epoch) {
		if n > 0 {
			e.ops = make([]*operation, 0, n)
		}
	}
}
