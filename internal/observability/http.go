package observability

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-Id"
	DeviceIDHeader  = "X-Device-Id"
)

// Client describes where a request came from.
type Client struct {
	RequestID string
	DeviceID  string
	IP        string
	UserAgent string
}

// ClientFromRequest collects the caller's identifying headers.
func ClientFromRequest(r *http.Request) Client {
	return Client{
		RequestID: RequestIDFromRequest(r),
		DeviceID:  strings.TrimSpace(r.Header.Get(DeviceIDHeader)),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// RequestIDFromRequest returns the caller's request id or mints a new one.
func RequestIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(RequestIDHeader)); id != "" {
		return id
	}
	return uuid.NewString()
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
