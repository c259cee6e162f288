// Package static provides a fixed backend-address source.
package static

import (
	"strings"

	"github.com/amirimatin/go-dbmon/pkg/discovery"
)

type staticAddrs struct {
	addrs []string
}

func (s *staticAddrs) Addrs() []string { return append([]string(nil), s.addrs...) }

// New returns a Source that always returns the given addresses.
func New(addrs ...string) discovery.Source {
	cleaned := make([]string, 0, len(addrs))
	for _, v := range addrs {
		v = strings.TrimSpace(v)
		if v != "" {
			cleaned = append(cleaned, v)
		}
	}
	return &staticAddrs{addrs: cleaned}
}

// Parse converts a comma-separated list into a []string of addresses.
func Parse(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
