// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phasediagram

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/middleware"
)

// =============================================================================
// Read Handlers
// =============================================================================

// HandlePhaseDiagram serves GET /v1/phase-diagram/:chemsys.
func HandlePhaseDiagram(svc *Service, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := middleware.Logger(c, logger, "phase_diagram")

		includeUnstable, err := parseBoolQuery(c, "include_unstable")
		if err != nil {
			writeError(c, log, err)
			return
		}
		d, err := svc.PhaseDiagram(c.Request.Context(), c.Param("chemsys"), includeUnstable)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

// HandleHull serves GET /v1/phase-diagram/:chemsys/hull.
func HandleHull(svc *Service, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := middleware.Logger(c, logger, "hull")

		h, err := svc.Hull(c.Request.Context(), c.Param("chemsys"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, h)
	}
}

// HandleListSystems serves GET /v1/phase-diagram.
func HandleListSystems(svc *Service, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := middleware.Logger(c, logger, "list_systems")

		limit := DefaultListLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(c, log, fmt.Errorf("%w: limit %q", ErrInvalidRequest, raw))
				return
			}
			limit = n
		}
		systems, err := svc.ListSystems(c.Request.Context(), limit)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, SystemsResponse{Systems: systems, Count: len(systems)})
	}
}

// =============================================================================
// Write Handlers
// =============================================================================

// HandleInvalidate serves DELETE /v1/phase-diagram/:chemsys/cache.
func HandleInvalidate(svc *Service, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := middleware.Logger(c, logger, "invalidate")

		chemsys := c.Param("chemsys")
		n, err := svc.Invalidate(c.Request.Context(), chemsys)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, InvalidateResponse{Chemsys: chemsys, Invalidated: n})
	}
}

// HandleUpsertMaterial serves POST /v1/materials.
func HandleUpsertMaterial(svc *Service, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := middleware.Logger(c, logger, "upsert_material")

		var req UpsertMaterialRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, log, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
			return
		}
		resp, err := svc.UpsertPhase(c.Request.Context(), req.Phase())
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// =============================================================================
// Health
// =============================================================================

// HandleHealth serves GET /health.
func HandleHealth(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if stats, ok := svc.CacheStats(); ok {
			body["cache"] = stats
		}
		c.JSON(http.StatusOK, body)
	}
}

// =============================================================================
// Helpers
// =============================================================================

func parseBoolQuery(c *gin.Context, name string) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidRequest, name, raw)
	}
	return v, nil
}

func writeError(c *gin.Context, log *slog.Logger, err error) {
	status, code := StatusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "status", status, "code", code, "error", err)
	} else {
		log.Info("request rejected", "status", status, "code", code, "error", err)
	}

	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: middleware.GetRequestID(c),
	})
}
