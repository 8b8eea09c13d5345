package builtin

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/weft/internal/engine"
)

// Factory builds a node callable from its schema args.
type Factory func(args []any) (engine.Func, error)

// Catalog maps node kinds to factories and names to selectors.
//
// Thread-safety: Catalog is safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	kinds     map[string]Factory
	selectors map[string]engine.Selector
}

var _ engine.Catalog = (*Catalog)(nil)

// New returns a catalog holding every stock kind and selector.
func New() *Catalog {
	c := Empty()
	c.Register("cat", newCat)
	c.Register("lines", noArgs("lines", lines))
	c.Register("sort", noArgs("sort", sortValues))
	c.Register("upcase", noArgs("upcase", upcase))
	c.Register("prefix", newAffix("prefix", true))
	c.Register("suffix", newAffix("suffix", false))
	c.Register("count", noArgs("count", count))
	c.Register("concat", newConcat)
	c.Register("echo", noArgs("echo", echo))
	c.Register("sleep", newSleep)
	c.Register("fail", newFail)

	c.RegisterSelector("nonempty", nonEmpty)
	c.RegisterSelector("parity", parity)
	c.RegisterSelector("never", never)
	return c
}

// Empty returns a catalog with nothing registered.
func Empty() *Catalog {
	return &Catalog{
		kinds:     make(map[string]Factory),
		selectors: make(map[string]engine.Selector),
	}
}

// Register adds or replaces a node kind.
func (c *Catalog) Register(kind string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds[kind] = f
}

// RegisterSelector adds or replaces a named selector.
func (c *Catalog) RegisterSelector(name string, sel engine.Selector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectors[name] = sel
}

// NodeFunc implements engine.Catalog.
func (c *Catalog) NodeFunc(kind string, args []any) (engine.Func, error) {
	c.mu.RLock()
	f, ok := c.kinds[kind]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown node kind %q", kind)
	}
	return f(args)
}

// Selector implements engine.Catalog.
func (c *Catalog) Selector(name string) (engine.Selector, error) {
	c.mu.RLock()
	sel, ok := c.selectors[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown selector %q", name)
	}
	return sel, nil
}

// Kinds returns the registered kinds, sorted.
func (c *Catalog) Kinds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.kinds))
	for k := range c.kinds {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Selectors returns the registered selector names, sorted.
func (c *Catalog) Selectors() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.selectors))
	for k := range c.selectors {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func noArgs(kind string, fn engine.Func) Factory {
	return func(args []any) (engine.Func, error) {
		if len(args) > 0 {
			return nil, fmt.Errorf("%s: takes no args, got %d", kind, len(args))
		}
		return fn, nil
	}
}

func stringArg(kind string, args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%s: missing arg %d", kind, i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%s: arg %d must be a string, got %T", kind, i, args[i])
	}
	return s, nil
}
