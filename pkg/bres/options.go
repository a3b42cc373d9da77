package bres

// Default limits applied to extracted strings.
const (
	DefaultMaxStringLen   = 4096
	AnimationMaxStringLen = 200
)

type options struct {
	extractStrings bool
	maxStringLen   int
	contexts       [2]*Container
	deferResolve   bool
}

func defaultOptions() options {
	return options{
		extractStrings: true,
		maxStringLen:   DefaultMaxStringLen,
	}
}

// Option configures Load.
type Option func(*options)

// WithStrings toggles string extraction. Without it, pointers into the
// string table are left unresolved.
func WithStrings(extract bool) Option {
	return func(o *options) { o.extractStrings = extract }
}

// WithMaxStringLen sets the longest string accepted from the string table.
func WithMaxStringLen(n int) Option {
	return func(o *options) { o.maxStringLen = n }
}

// WithContext registers another loaded container as file context slot
// (0 = base file, 1 = companion) for external references.
func WithContext(slot int, c *Container) Option {
	return func(o *options) {
		if slot == 0 || slot == 1 {
			o.contexts[slot] = c
		}
	}
}

// WithDeferredResolve skips pointer fix-up; call Resolve explicitly.
func WithDeferredResolve() Option {
	return func(o *options) { o.deferResolve = true }
}
