package browser

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/gobwas/glob"
)

// ErrNavigationDenied is returned when a navigation target is rejected
// by the configured URL policy.
var ErrNavigationDenied = errors.New("navigation denied by policy")

// NavigationPolicy decides which URLs a session may navigate to.
// Patterns are matched against both the full URL and its host, so
// "*.example.com" blocks hosts while "https://example.com/admin/*"
// blocks specific paths.
type NavigationPolicy struct {
	allowed []glob.Glob
	denied  []glob.Glob
}

// NewNavigationPolicy compiles allow and deny glob patterns into a policy.
// An empty allow list permits everything not explicitly denied.
func NewNavigationPolicy(allowed, denied []string) (*NavigationPolicy, error) {
	p := &NavigationPolicy{}

	for _, pattern := range allowed {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed pattern %q: %w", pattern, err)
		}
		p.allowed = append(p.allowed, g)
	}

	for _, pattern := range denied {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid denied pattern %q: %w", pattern, err)
		}
		p.denied = append(p.denied, g)
	}

	return p, nil
}

// Permits reports whether the policy allows navigating to rawURL.
// Denied patterns take precedence over allowed ones.
func (p *NavigationPolicy) Permits(rawURL string) bool {
	candidates := matchCandidates(rawURL)

	for _, pattern := range p.denied {
		for _, c := range candidates {
			if pattern.Match(c) {
				return false
			}
		}
	}

	if len(p.allowed) == 0 {
		return true
	}

	for _, pattern := range p.allowed {
		for _, c := range candidates {
			if pattern.Match(c) {
				return true
			}
		}
	}

	return false
}

// Check returns ErrNavigationDenied (wrapped with the URL) when the
// policy rejects rawURL, and nil otherwise.
func (p *NavigationPolicy) Check(rawURL string) error {
	if !p.Permits(rawURL) {
		return fmt.Errorf("%w: %s", ErrNavigationDenied, rawURL)
	}
	return nil
}

// matchCandidates returns the strings a URL is matched under: the raw
// URL itself plus its host and hostname when parseable.
func matchCandidates(rawURL string) []string {
	candidates := []string{rawURL}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return candidates
	}
	candidates = append(candidates, u.Host)
	if hostname := u.Hostname(); hostname != "" && hostname != u.Host {
		candidates = append(candidates, hostname)
	}
	return candidates
}
