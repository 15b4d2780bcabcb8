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
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/middleware"
)

// SetupRoutes registers the phase-diagram API on router. Write routes go
// through limiter when it is non-nil.
func SetupRoutes(router *gin.Engine, svc *Service, limiter *middleware.RateLimiter, logger *slog.Logger) {
	router.GET("/health", HandleHealth(svc))

	writes := []gin.HandlerFunc{}
	if limiter != nil {
		writes = append(writes, limiter.Handler())
	}

	v1 := router.Group("/v1")
	v1.Use(middleware.RequestID())
	{
		pd := v1.Group("/phase-diagram")
		{
			pd.GET("", HandleListSystems(svc, logger))
			pd.GET("/:chemsys", HandlePhaseDiagram(svc, logger))
			pd.GET("/:chemsys/hull", HandleHull(svc, logger))
			pd.DELETE("/:chemsys/cache", append(writes, HandleInvalidate(svc, logger))...)
		}
		v1.POST("/materials", append(writes, HandleUpsertMaterial(svc, logger))...)
	}
}
