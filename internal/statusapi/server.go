// Package statusapi is the operator HTTP surface shared by the client and
// relay binaries.
package statusapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/xrsync/internal/observability"
	"github.com/danmuck/xrsync/internal/reconcile"
	"github.com/danmuck/xrsync/internal/syncer"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// NewEngine builds a gin engine with recovery, request logging, request
// metrics and CORS for the given origins.
func NewEngine(node string, corsOrigins []string) *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(node))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	return r
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

// RegisterCommon adds /health and /metrics.
func RegisterCommon(r gin.IRoutes, node string, started time.Time) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(started).String(),
			"service": node,
			"version": version,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Client is the part of syncer.Client the status routes use.
type Client interface {
	Status() syncer.Status
	SendHaptic(ctx context.Context, peer uint16, deviceID uint32, channel uint32, amplitude, duration float32) error
}

// Proxies lists the live remote proxies, when the binary records them.
type Proxies interface {
	Snapshots() []reconcile.Snapshot
}

type hapticRequest struct {
	Peer      uint16  `json:"peer"`
	Device    uint32  `json:"device"`
	Channel   uint32  `json:"channel"`
	Amplitude float32 `json:"amplitude" binding:"gte=0,lte=1"`
	Duration  float32 `json:"duration" binding:"gte=0"`
}

// RegisterClient adds the client routes: /status, /proxies and
// POST /haptic.
func RegisterClient(r gin.IRoutes, client Client, proxies Proxies) {
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, client.Status())
	})

	r.GET("/ready", func(c *gin.Context) {
		st := client.Status()
		code := http.StatusOK
		if !st.Trusted {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":     st.Trusted,
			"transport": st.Transport,
			"fatal":     st.Fatal,
		})
	})

	r.GET("/proxies", func(c *gin.Context) {
		if proxies == nil {
			c.JSON(http.StatusOK, gin.H{"proxies": []reconcile.Snapshot{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"proxies": proxies.Snapshots()})
	})

	r.POST("/haptic", func(c *gin.Context) {
		var req hapticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		err := client.SendHaptic(c.Request.Context(), req.Peer, req.Device, req.Channel, req.Amplitude, req.Duration)
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, syncer.ErrNotInitialized) {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
	})
}
