package pkg

// SystemInfo is a read-only snapshot of a System's registrations, used for
// generated documentation and introspection endpoints.
type SystemInfo struct {
	Name         string       `json:"name"`
	UsesPatterns bool         `json:"usesPatterns"`
	Actions      []ActionInfo `json:"actions"`
	BeforeAll    []ChainInfo  `json:"beforeAll,omitempty"`
	AfterAll     []ChainInfo  `json:"afterAll,omitempty"`
}

// ActionInfo describes every chain registered under one identifier.
type ActionInfo struct {
	Name   string      `json:"name"`
	Chains []ChainInfo `json:"chains"`
}

// ChainInfo describes a single chain.
type ChainInfo struct {
	Validated bool     `json:"validated"`
	Guards    int      `json:"guards"`
	Handlers  []string `json:"handlers"`
}

// Info returns the registrations in the order they were made.
func (s *System) Info() SystemInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := SystemInfo{
		Name:         s.opts.name,
		UsesPatterns: s.opts.usePattern,
		Actions:      make([]ActionInfo, 0, len(s.order)),
	}
	for _, e := range s.order {
		ai := ActionInfo{Name: e.identifier}
		for _, c := range e.chains {
			ai.Chains = append(ai.Chains, c.info())
		}
		info.Actions = append(info.Actions, ai)
	}
	for _, c := range s.preware {
		info.BeforeAll = append(info.BeforeAll, c.info())
	}
	for _, c := range s.postware {
		info.AfterAll = append(info.AfterAll, c.info())
	}
	return info
}
