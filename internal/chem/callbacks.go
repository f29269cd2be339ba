package chem

import "sync"

// RateFunc computes a user-defined rate parameter from a cell's conditions.
type RateFunc func(c Conditions) float64

// Callbacks resolves externally supplied rate functions by label.
//
// A Callbacks value is handed to a backend at construction. Before each Solve
// the backend overwrites the user-defined rate parameter of every registered
// label with the callback's value; unregistered labels keep whatever the
// caller wrote into the state. The zero value and a nil *Callbacks hold no
// functions and Evaluate returns (0, false).
type Callbacks struct {
	mu    sync.RWMutex
	funcs map[string]RateFunc
}

// NewCallbacks returns an empty registry.
func NewCallbacks() *Callbacks {
	return &Callbacks{funcs: make(map[string]RateFunc)}
}

// Register binds fn to label, replacing any previous binding.
func (c *Callbacks) Register(label string, fn RateFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.funcs == nil {
		c.funcs = make(map[string]RateFunc)
	}
	c.funcs[label] = fn
}

// Unregister removes the binding for label.
func (c *Callbacks) Unregister(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.funcs, label)
}

// Evaluate calls the function bound to label.
func (c *Callbacks) Evaluate(label string, cond Conditions) (float64, bool) {
	if c == nil {
		return 0, false
	}
	c.mu.RLock()
	fn, ok := c.funcs[label]
	c.mu.RUnlock()
	if !ok || fn == nil {
		return 0, false
	}
	return fn(cond), true
}

// Labels returns the registered labels.
func (c *Callbacks) Labels() []string {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	labels := make([]string, 0, len(c.funcs))
	for l := range c.funcs {
		labels = append(labels, l)
	}
	return labels
}
