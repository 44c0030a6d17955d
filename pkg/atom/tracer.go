package atom

// Span names reported to a Tracer.
const (
	SpanInternCold  = "atom.intern.cold"
	SpanInternBatch = "atom.intern.batch"
	SpanClear       = "atom.clear"
	SpanClone       = "atom.clone"
)

// Tracer is a span hook. StartSpan opens a span named name and returns the
// function that ends it. Implementations must be safe for concurrent use.
//
// The lock-free fast path of Intern is never traced.
type Tracer interface {
	StartSpan(name string) (end func())
}

type noopTracer struct{}

func (noopTracer) StartSpan(string) func() { return func() {} }
