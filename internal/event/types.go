package event

// Event is implemented by stream elements that carry a type name. The bus uses
// it for typed subscriptions and for per-type metrics.
type Event interface {
	Type() string
}
