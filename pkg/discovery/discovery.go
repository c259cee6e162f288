// Package discovery provides backend-address sources used at bootstrap to
// populate a monitor's server list.
package discovery

// Source abstracts where monitored backend addresses ("host:port") come
// from: a static list, a file, or DNS records.
type Source interface {
	Addrs() []string
}
