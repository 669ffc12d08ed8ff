package redis

import "strings"

const keyNamespace = "wdir"

// IdempotencyKey namespaces a processed-event marker, e.g.
// wdir:idempotency:stripe-webhook:evt_123.
func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey("idempotency", scope, id)
}

// RateLimitKey namespaces a fixed-window counter.
func (c *Client) RateLimitKey(scope string) string {
	return buildKey("rate_limit", scope)
}

// AdminSessionKey namespaces the record backing one admin session token.
func (c *Client) AdminSessionKey(sessionID string) string {
	return buildKey("session", "admin", sessionID)
}

// buildKey joins the non-blank parts under the service namespace.
func buildKey(parts ...string) string {
	segments := append(make([]string, 0, len(parts)+1), keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			segments = append(segments, part)
		}
	}
	return strings.Join(segments, ":")
}
