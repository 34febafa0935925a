package utils

import (
	"net"
	"strings"
)

// GetLocalIPs returns all non-loopback IPv4 addresses. Link-local
// (169.254.x.x) addresses are dropped when a routable one exists.
func GetLocalIPs() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var ips []string
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			ips = append(ips, ipnet.IP.String())
		}
	}
	return filterLinkLocal(ips)
}

func filterLinkLocal(ips []string) []string {
	hasRoutable := false
	for _, ip := range ips {
		if !strings.HasPrefix(ip, "169.254") {
			hasRoutable = true
			break
		}
	}
	if !hasRoutable {
		return ips
	}
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		if !strings.HasPrefix(ip, "169.254") {
			out = append(out, ip)
		}
	}
	return out
}
