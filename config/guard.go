package config

import (
	"net/url"
	"strings"
	"sync/atomic"
)

// placeholders are endpoint values shipped in templates and sample env files.
var placeholders = []string{
	"your-project-url",
	"your_project_url",
	"https://placeholder",
	"https://your-project",
	"http://localhost:0",
	"changeme",
}

// Guard reports whether the backend endpoint is usable without touching the network.
type Guard struct {
	endpoint atomic.Value // string
}

func NewGuard(endpoint string) *Guard {
	g := &Guard{}
	g.Set(endpoint)
	return g
}

// Set replaces the inspected endpoint. Safe for concurrent use.
func (g *Guard) Set(endpoint string) { g.endpoint.Store(strings.TrimSpace(endpoint)) }

func (g *Guard) Endpoint() string {
	s, _ := g.endpoint.Load().(string)
	return s
}

// IsConfigured is false for empty, placeholder or unparsable endpoints.
func (g *Guard) IsConfigured() bool {
	if g == nil {
		return false
	}
	return IsConfiguredEndpoint(g.Endpoint())
}

func IsConfiguredEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	lower := strings.ToLower(endpoint)
	for _, p := range placeholders {
		if strings.HasPrefix(lower, p) {
			return false
		}
	}
	if strings.ContainsAny(endpoint, "<>") || strings.Contains(endpoint, "YOUR_") {
		return false
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
