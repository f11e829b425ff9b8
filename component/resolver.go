package component

// Resolver lets a component look up the peers it was wired to depend on.
// The manager satisfies this interface; components receive it at
// construction time and call it from Start, by which point every
// dependency has already been started.
type Resolver interface {
	// Has reports whether a component with the given name is registered.
	Has(name string) bool

	// Handle returns the named component's handle. It returns an error
	// for names that are not registered.
	Handle(name string) (any, error)
}
