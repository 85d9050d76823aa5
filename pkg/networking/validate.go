// Package networking provides small URL validation helpers shared by the
// OAuth components that accept caller-supplied endpoint URLs.
package networking

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateEndpointURL checks that urlStr is an absolute http(s) URL.
func ValidateEndpointURL(urlStr string) error {
	return ValidateEndpointURLWithInsecure(urlStr, false)
}

// ValidateEndpointURLWithInsecure checks that urlStr is an absolute URL.
// HTTPS is required unless the host is localhost or insecureAllowHTTP is set.
func ValidateEndpointURLWithInsecure(urlStr string, insecureAllowHTTP bool) error {
	if urlStr == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", urlStr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", urlStr)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q is missing a host", urlStr)
	}
	if u.Scheme == "http" && !IsLocalhost(u.Host) && !insecureAllowHTTP {
		return fmt.Errorf("url %q must use https (use insecureAllowHTTP for testing only)", urlStr)
	}
	return nil
}

// IsLocalhost reports whether host (optionally "host:port") refers to the
// local machine.
func IsLocalhost(host string) bool {
	h := host
	if hostOnly, _, err := net.SplitHostPort(host); err == nil {
		h = hostOnly
	}
	h = strings.ToLower(h)
	if h == "localhost" {
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
