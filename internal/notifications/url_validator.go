package notifications

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ValidateWebhookURL checks that a notification target is safe to call.
// Operators configure webhook URLs through the environment, but the server
// still refuses destinations inside private or reserved ranges so a bad
// config cannot be used to probe internal services. When requireHTTPS is
// true (production), plain HTTP targets are rejected too.
func ValidateWebhookURL(urlStr string, requireHTTPS bool) error {
	if strings.TrimSpace(urlStr) == "" {
		return fmt.Errorf("webhook URL is required")
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}

	if parsed.Scheme != "https" {
		if parsed.Scheme != "http" {
			return fmt.Errorf("webhook URL must use HTTP or HTTPS scheme")
		}
		if requireHTTPS {
			return fmt.Errorf("webhook URL must use HTTPS")
		}
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("webhook URL must have a host")
	}

	ips, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("resolve webhook host %q: %w", host, err)
	}
	for _, raw := range ips {
		if ip := net.ParseIP(raw); ip != nil && isBlockedIP(ip) {
			return fmt.Errorf("webhook URL resolves to blocked address %s", raw)
		}
	}
	return nil
}

// isBlockedIP reports whether the address is private, loopback, link-local,
// or otherwise not a legitimate public webhook target. Link-local covers the
// cloud metadata endpoint.
func isBlockedIP(ip net.IP) bool {
	return ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

// ValidatingDialer re-checks resolved addresses at connect time. Validation
// at config load is not enough: a hostname can resolve to a public IP then,
// and to a private one when the notification actually fires (DNS rebinding).
func ValidatingDialer() func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", addr, err)
		}

		resolved, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("resolve host %q: %w", host, err)
		}

		for _, ipAddr := range resolved {
			if isBlockedIP(ipAddr.IP) {
				continue
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(ipAddr.IP.String(), port))
		}
		return nil, fmt.Errorf("all resolved IPs for %q are blocked (private/reserved)", host)
	}
}
