package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ping handles GET /ping
func (s *Server) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": timestamp(),
	})
}

// getInfo handles GET /info
func (s *Server) getInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"hostname":   s.info.Hostname,
		"os":         s.info.OS,
		"arch":       s.info.Arch,
		"cpu":        s.info.CPU,
		"ram":        s.info.RAM,
		"go_version": s.info.GoVersion,
		"status":     "online",
		"ip":         requestHost(c.Request),
	})
}

// getStatus handles GET /status. Probe failures still answer 200 so that a
// reachable agent is always reported online.
func (s *Server) getStatus(c *gin.Context) {
	st, err := s.system.Status(c.Request.Context())
	if err != nil {
		s.logger.Warn("failed to collect status", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"status":    "online",
			"error":     err.Error(),
			"timestamp": timestamp(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "online",
		"hostname":      st.Hostname,
		"uptime":        st.Uptime,
		"cpu_usage":     st.CPUUsage,
		"memory_usage":  st.MemoryUsage,
		"disk_usage":    st.DiskUsage,
		"running_tasks": s.executor.Running(),
		"timestamp":     timestamp(),
	})
}

// listAgents handles GET /agents
func (s *Server) listAgents(c *gin.Context) {
	if s.registrar == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "agent registry not configured"})
		return
	}

	agents, err := s.registrar.Agents(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list agents", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"agents": agents,
		"count":  len(agents),
	})
}

func timestamp() string {
	return time.Now().Format(time.RFC3339Nano)
}
