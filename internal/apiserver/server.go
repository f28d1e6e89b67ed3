package apiserver

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/banachtech/orex/internal/store"
)

// Server is the control-plane HTTP API: submit/poll runs, fetch reports.
// Grounded on the teacher's api.Server (store + gin.Engine, route groups
// protected by a bearer-token auth middleware).
type Server struct {
	store  store.Store
	runner *Runner
	router *gin.Engine
}

// NewServer builds a Server backed by st, handing off submitted runs to
// runner.
func NewServer(st store.Store, runner *Runner) *Server {
	server := &Server{store: st, runner: runner}
	server.setupRouter()
	return server
}

func (server *Server) setupRouter() {
	router := gin.Default()

	authRoutes := router.Group("/v1").Use(server.authentication)
	authRoutes.POST("/runs", server.submitRun)
	authRoutes.GET("/runs/:id", server.getRun)
	authRoutes.GET("/runs/:id/report/:name", server.getReport)
	server.router = router
}

// Start runs the HTTP server on address.
func (server *Server) Start(address string) error {
	return server.router.Run(address)
}

func errorResponse(err error) gin.H {
	return gin.H{"error": err.Error()}
}

type submitRunRequest struct {
	ConfigPath string `json:"configPath" binding:"required"`
}

func (server *Server) submitRun(c *gin.Context) {
	var req submitRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(err))
		return
	}
	id, err := server.runner.Submit(c, req.ConfigPath)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (server *Server) getRun(c *gin.Context) {
	run, err := server.runner.Status(c, c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse(err))
		return
	}
	c.JSON(http.StatusOK, run)
}

func (server *Server) getReport(c *gin.Context) {
	run, err := server.runner.Status(c, c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse(err))
		return
	}
	if run.Status != store.RunCompleted {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"status": string(run.Status)})
		return
	}
	path := filepath.Join(run.ReportDir, filepath.Base(c.Param("name")))
	f, err := os.Open(path)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse(err))
		return
	}
	defer f.Close()
	c.Header("Content-Type", "text/csv")
	if _, err := io.Copy(c.Writer, f); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse(err))
	}
}
