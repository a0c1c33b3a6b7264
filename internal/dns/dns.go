// Package dns resolves the signaling server's host name, falling back to
// public resolvers when the system resolver fails.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrNoAddress is returned when a resolver answers without any address.
var ErrNoAddress = errors.New("no addresses found")

var publicServers = []string{
	"1.1.1.1",         // Cloudflare
	"1.0.0.1",         // Cloudflare
	"8.8.8.8",         // Google
	"8.8.4.4",         // Google
	"9.9.9.9",         // Quad9
	"149.112.112.112", // Quad9
	"208.67.222.222",  // OpenDNS
	"208.67.220.220",  // OpenDNS
}

// Resolver looks names up with the system resolver first and races a set of
// public servers on failure.
type Resolver struct {
	System       *net.Resolver
	Public       []string
	LocalTimeout time.Duration
	RaceTimeout  time.Duration
}

// NewResolver returns a Resolver using the built-in public server list.
func NewResolver() *Resolver {
	return &Resolver{
		System:       net.DefaultResolver,
		Public:       publicServers,
		LocalTimeout: time.Second,
		RaceTimeout:  2 * time.Second,
	}
}

// Lookup returns one address for host, preferring IPv4. IP literals are
// returned unchanged.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	local, cancel := context.WithTimeout(ctx, r.LocalTimeout)
	ip, err := lookupWith(local, r.System, host)
	cancel()
	if err == nil {
		return ip, nil
	}
	if len(r.Public) == 0 {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	return r.race(ctx, host)
}

// DialContext dials addr after resolving its host with Lookup. It fits
// websocket.Dialer.NetDialContext.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ip, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.RaceTimeout)
	defer cancel()

	type result struct {
		ip  string
		err error
	}
	results := make(chan result, len(r.Public))
	for _, server := range r.Public {
		go func(server string) {
			ip, err := lookupWith(ctx, viaServer(server), host)
			results <- result{ip: ip, err: err}
		}(server)
	}

	var lastErr error
	for range r.Public {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
			lastErr = res.err
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: public DNS race: %w", host, ctx.Err())
		}
	}
	return "", fmt.Errorf("resolve %s: all %d public servers failed: %w", host, len(r.Public), lastErr)
}

func viaServer(server string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
}

func lookupWith(ctx context.Context, res *net.Resolver, host string) (string, error) {
	ips, err := res.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", ErrNoAddress
	}
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
