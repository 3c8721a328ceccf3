package expressions

import "sync"

// compileCache memoizes compiled programs keyed by expression source.
// Safe for concurrent use; compilation under the write lock keeps a given
// expression from being compiled twice.
type compileCache[P any] struct {
	mu       sync.RWMutex
	programs map[string]P
}

func newCompileCache[P any]() *compileCache[P] {
	return &compileCache[P]{programs: make(map[string]P)}
}

// get returns the cached program for expression, compiling and storing it on
// a miss.
func (c *compileCache[P]) get(expression string, compile func(string) (P, error)) (P, error) {
	c.mu.RLock()
	if p, ok := c.programs[expression]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.programs[expression]; ok {
		return p, nil
	}

	p, err := compile(expression)
	if err != nil {
		var zero P
		return zero, err
	}
	c.programs[expression] = p
	return p, nil
}

func (c *compileCache[P]) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}
