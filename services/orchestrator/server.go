// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/threadlens/services/filter"
)

// NewRouter builds the engine's control-plane API:
//
//	GET  /healthz           liveness probe
//	GET  /metrics           Prometheus exposition
//	GET  /v1/settings       current settings record
//	PUT  /v1/settings       replace the settings record
//	POST /v1/enabled        toggle the engine
//	GET  /v1/stats          engine statistics snapshot
func NewRouter(o *Orchestrator) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	reg := prometheus.NewRegistry()
	if err := o.metrics.register(reg); err != nil {
		o.log.Warn("metrics registration failed", "error", err)
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.GET("/healthz", handleHealth)

	v1 := router.Group("/v1")
	{
		v1.GET("/settings", handleGetSettings(o))
		v1.PUT("/settings", handlePutSettings(o))
		v1.POST("/enabled", handleSetEnabled(o))
		v1.GET("/stats", handleStats(o))
	}
	return router
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func handleGetSettings(o *Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Settings().ToRecord())
	}
}

func handlePutSettings(o *Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var rec filter.Record
		if err := c.ShouldBindJSON(&rec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		changed, err := o.ApplyRecord(c.Request.Context(), rec)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"changedThreads": changed})
	}
}

func handleSetEnabled(o *Orchestrator) gin.HandlerFunc {
	type request struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	return func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		changed := o.SetEnabled(c.Request.Context(), *req.Enabled)
		c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled, "changedThreads": changed})
	}
}

func handleStats(o *Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Snapshot())
	}
}
