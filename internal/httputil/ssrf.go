package httputil

import (
	"fmt"
	"net"
)

// blockedClass pairs a net.IP classifier with the error text and reason
// word used when that classifier matches, kept in the order checks run.
type blockedClass struct {
	matches func(net.IP) bool
	reason  string
}

var blockedClasses = []blockedClass{
	{net.IP.IsPrivate, "private"},
	{net.IP.IsLoopback, "loopback"},
	{net.IP.IsLinkLocalUnicast, "link-local"},
	{net.IP.IsLinkLocalMulticast, "link-local multicast"},
	{net.IP.IsMulticast, "multicast"},
	{net.IP.IsUnspecified, "unspecified"},
}

// ValidateIP rejects addresses that have no business being the target of
// an outbound cache-provider request: RFC 1918 private ranges, loopback,
// link-local unicast (this is where the AWS/GCP metadata endpoint lives),
// link-local and general multicast, and the unspecified address. host is
// folded into the returned error so a caller resolving a hostname can
// report which name led to the blocked address.
func ValidateIP(ip net.IP, host string) error {
	for _, c := range blockedClasses {
		if c.matches(ip) {
			return fmt.Errorf("refusing redirect to %s IP: %s (%s)", c.reason, host, ip)
		}
	}
	return nil
}
