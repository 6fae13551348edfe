package pkg

import "sync"

// BodyKey is the reserved RequestContext key holding the dispatch result.
const BodyKey = "body"

// RequestContext is the mutable scratch space shared by every chain of a
// single Handle call. It is never shared between dispatches.
type RequestContext struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewRequestContext creates an empty context
func NewRequestContext() *RequestContext {
	return &RequestContext{
		values: make(map[string]any),
	}
}

// Set stores value under key, replacing any previous value.
func (rc *RequestContext) Set(key string, value any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.values[key] = value
}

// Get returns the value stored under key, or nil when absent.
func (rc *RequestContext) Get(key string) any {
	v, _ := rc.Lookup(key)
	return v
}

// Lookup returns the value stored under key and whether it was set.
func (rc *RequestContext) Lookup(key string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.values[key]
	return v, ok
}

// Body returns the value stored under BodyKey.
func (rc *RequestContext) Body() any {
	return rc.Get(BodyKey)
}
