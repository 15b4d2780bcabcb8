// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides gin middleware for the phase-diagram API.
//
// # Request Flow
//
//	Request
//	   │
//	   ▼
//	RequestID ──► X-Request-ID header or a fresh UUID, stored in context
//	   │
//	   ▼
//	Timeout ──► request context carries a deadline
//	   │
//	   ▼
//	RateLimiter (write routes only) ──► 429 when the client's bucket is empty
//	   │
//	   ▼
//	Handler (reads the id via GetRequestID, logs via Logger)
package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// =============================================================================
// Context Keys
// =============================================================================

const requestIDKey = "materials_request_id"

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds client-supplied ids before they reach logs.
const maxRequestIDLength = 128

// =============================================================================
// Request ID
// =============================================================================

// RequestID assigns every request an id. A client-supplied X-Request-ID is
// kept when it is non-empty and short; otherwise a UUID is generated. The
// id is echoed in the response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the id set by RequestID, or "" outside it.
func GetRequestID(c *gin.Context) string {
	v, ok := c.Get(requestIDKey)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}

// Logger returns base annotated with the request id and handler name.
func Logger(c *gin.Context, base *slog.Logger, handler string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("request_id", GetRequestID(c), "handler", handler)
}

// =============================================================================
// Deadlines
// =============================================================================

// Timeout bounds the request context by d. Handlers see
// context.DeadlineExceeded from store calls that overrun. d <= 0 disables it.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
