package utils

import (
	"errors"
	"net"
	"strings"
)

// ErrNoLANAddress is returned when no interface carries a non-loopback IPv4 address.
var ErrNoLANAddress = errors.New("no non-internal IPv4 address found")

var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// tunnelHints are interface name fragments used by VPN and tunnel adapters.
var tunnelHints = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}

type iface struct {
	name  string
	flags net.Flags
	addrs []net.Addr
}

// interfaces is replaced in tests.
var interfaces = func() ([]iface, error) {
	list, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]iface, 0, len(list))
	for _, i := range list {
		addrs, err := i.Addrs()
		if err != nil {
			continue
		}
		out = append(out, iface{name: i.Name, flags: i.Flags, addrs: addrs})
	}
	return out, nil
}

func active(i iface) bool {
	return i.flags&net.FlagUp != 0 && i.flags&net.FlagLoopback == 0
}

func ipOf(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}

// LocalIPv4s lists the IPv4 addresses of every up, non-loopback interface in
// interface order.
func LocalIPv4s() []string {
	list, err := interfaces()
	if err != nil {
		return nil
	}
	var ips []string
	for _, i := range list {
		if !active(i) {
			continue
		}
		for _, addr := range i.addrs {
			if ip := ipOf(addr).To4(); ip != nil && !ip.IsLoopback() {
				ips = append(ips, ip.String())
			}
		}
	}
	return ips
}

// LocalIPv4 returns the first address LocalIPv4s reports.
func LocalIPv4() (string, error) {
	ips := LocalIPv4s()
	if len(ips) == 0 {
		return "", ErrNoLANAddress
	}
	return ips[0], nil
}

// ShouldForceRelay reports whether this host looks like it sits behind a VPN
// tunnel or carrier-grade NAT, where direct channels rarely connect and a
// TURN relay should be forced.
func ShouldForceRelay() bool {
	list, err := interfaces()
	if err != nil {
		return false
	}
	for _, i := range list {
		if !active(i) {
			continue
		}
		name := strings.ToLower(i.name)
		for _, hint := range tunnelHints {
			if strings.Contains(name, hint) {
				return true
			}
		}
		for _, addr := range i.addrs {
			if cgnatBlock.Contains(ipOf(addr)) {
				return true
			}
		}
	}
	return false
}
