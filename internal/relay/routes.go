package relay

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/danmuck/xrsync/internal/auth"
	"github.com/danmuck/xrsync/internal/pose"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the websocket endpoint at path plus the relay's
// inspection routes. access guards the session and calibration routes; nil
// leaves them open.
func (s *Server) RegisterRoutes(r gin.IRoutes, path string, access auth.Validator) {
	if access == nil {
		access = auth.Open{}
	}
	guard := auth.Require(access)
	r.GET(path, guard, gin.WrapH(s))

	r.GET("/state", func(c *gin.Context) {
		state, err := s.State()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, state)
	})

	r.GET("/peers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"peers": s.Peers()})
	})

	r.POST("/peers/:peer/calibration", guard, func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("peer"), 10, 16)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid peer id"})
			return
		}
		var t pose.Transform
		if err := c.ShouldBindJSON(&t); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := s.SetCalibration(uint16(id), t); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrUnknownPeer) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
