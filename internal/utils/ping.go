package utils

import (
	"fmt"
	"net"
	"net/url"
	"time"
)

// PingService checks if a service is reachable at the given URL
func PingService(serviceURL string, timeout time.Duration) error {
	parsedURL, err := url.Parse(serviceURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	host := parsedURL.Hostname()
	port := parsedURL.Port()

	// Default ports if not specified
	if port == "" {
		switch parsedURL.Scheme {
		case "smtps":
			port = "465"
		case "smtp":
			port = "587"
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}

	return PingAddress(net.JoinHostPort(host, port), timeout)
}

// PingAddress dials a host:port over TCP
func PingAddress(address string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	defer conn.Close()

	return nil
}

// PingSMTP checks if the SMTP server is reachable
func PingSMTP(address string) error {
	return PingAddress(address, 1500*time.Millisecond)
}
