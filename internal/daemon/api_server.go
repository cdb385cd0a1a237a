package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"memecat/internal/catalog"
	"memecat/internal/config"
	"memecat/internal/logging"
	"memecat/internal/merge"
	"memecat/internal/services"
	"memecat/internal/workflow"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	router *gin.Engine

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

type pairRequest struct {
	FilenameA string `json:"filename_a"`
	FilenameB string `json:"filename_b"`
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, errors.New("api server requires config and daemon")
	}
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.API.Bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestIDMiddleware(), srv.accessLog(), authMiddleware(cfg.API.Token))
	api := r.Group("/api")
	api.GET("/status", srv.handleStatus)
	api.GET("/items", srv.handleListItems)
	api.GET("/items/:filename", srv.handleGetItem)
	api.PATCH("/items/:filename", srv.handleUpdateItem)
	api.DELETE("/items/:filename", srv.handleDeleteItem)
	api.GET("/items/:filename/duplicates", srv.handleDuplicates)
	api.POST("/items/:filename/not-duplicate", srv.handleNotDuplicate)
	api.POST("/items/:filename/recompute-fingerprint", srv.handleRecompute)
	api.GET("/groups", srv.handleGroups)
	api.POST("/merge", srv.handleMerge)
	api.GET("/pair-exceptions", srv.handleListExceptions)
	api.POST("/pair-exceptions", srv.handleAddException)
	api.DELETE("/pair-exceptions", srv.handleRemoveException)
	api.GET("/sync/runs", srv.handleSyncRuns)
	api.POST("/sync", srv.handleTriggerSync)
	api.POST("/export", srv.handleExport)
	srv.router = r

	srv.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	_ = s.listener.Close()
	s.listener = nil
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler exposes the HTTP API router without binding a socket.
func (d *Daemon) Handler() http.Handler {
	return d.api.router
}

func (s *apiServer) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.daemon.Status(c.Request.Context()))
}

func (s *apiServer) handleListItems(c *gin.Context) {
	filter := catalog.ItemFilter{Category: c.Query("category")}
	var err error
	if filter.Unprocessed, err = queryBool(c, "unprocessed"); err != nil {
		s.fail(c, err)
		return
	}
	if filter.GroupedOnly, err = queryBool(c, "grouped"); err != nil {
		s.fail(c, err)
		return
	}
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		s.fail(c, err)
		return
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		s.fail(c, err)
		return
	}
	items, err := s.daemon.ListItems(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (s *apiServer) handleGetItem(c *gin.Context) {
	item, err := s.daemon.GetItem(c.Request.Context(), c.Param("filename"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *apiServer) handleUpdateItem(c *gin.Context) {
	var patch catalog.ItemPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.fail(c, badRequest("update_item", err))
		return
	}
	item, err := s.daemon.UpdateItem(c.Request.Context(), c.Param("filename"), patch)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *apiServer) handleDeleteItem(c *gin.Context) {
	dissolved, err := s.daemon.DeleteItem(c.Request.Context(), c.Param("filename"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if dissolved == nil {
		dissolved = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "filename": c.Param("filename"), "dissolved_groups": dissolved})
}

func (s *apiServer) handleDuplicates(c *gin.Context) {
	hood, err := s.daemon.DuplicatesOf(c.Request.Context(), c.Param("filename"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, hood)
}

func (s *apiServer) handleNotDuplicate(c *gin.Context) {
	item, err := s.daemon.MarkNotDuplicate(c.Request.Context(), c.Param("filename"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *apiServer) handleRecompute(c *gin.Context) {
	fp, err := s.daemon.RecomputeFingerprint(c.Request.Context(), c.Param("filename"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"filename": c.Param("filename"), "fingerprint": fp.String()})
}

func (s *apiServer) handleGroups(c *gin.Context) {
	groups, err := s.daemon.ListGroups(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups, "count": len(groups)})
}

func (s *apiServer) handleMerge(c *gin.Context) {
	var req merge.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("merge", err))
		return
	}
	result, err := s.daemon.Merge(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *apiServer) handleListExceptions(c *gin.Context) {
	exceptions, err := s.daemon.ListPairExceptions(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pairs": exceptions, "count": len(exceptions)})
}

func (s *apiServer) handleAddException(c *gin.Context) {
	var req pairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("mark_false_positive", err))
		return
	}
	if err := s.daemon.MarkFalsePositive(c.Request.Context(), req.FilenameA, req.FilenameB); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "recorded", "filename_a": req.FilenameA, "filename_b": req.FilenameB})
}

func (s *apiServer) handleRemoveException(c *gin.Context) {
	req := pairRequest{FilenameA: c.Query("filename_a"), FilenameB: c.Query("filename_b")}
	if req.FilenameA == "" && req.FilenameB == "" {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, badRequest("remove_pair_exception", err))
			return
		}
	}
	removed, err := s.daemon.RemovePairException(c.Request.Context(), req.FilenameA, req.FilenameB)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !removed {
		s.fail(c, services.Wrap(services.ErrNotFound, "daemon", "remove_pair_exception", "no exception recorded for pair", nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (s *apiServer) handleSyncRuns(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.fail(c, err)
		return
	}
	runs, err := s.daemon.SyncRuns(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *apiServer) handleTriggerSync(c *gin.Context) {
	if err := s.daemon.TriggerSync(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
}

func (s *apiServer) handleExport(c *gin.Context) {
	count, err := s.daemon.ExportListing(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "exported", "entries": count})
}

func (s *apiServer) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(c.Request.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("path", c.FullPath()),
			logging.Int("status", status),
			logging.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// statusFor maps an operation error to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, workflow.ErrRunInProgress) {
		return http.StatusConflict
	}
	return services.HTTPStatus(err)
}

func badRequest(op string, err error) error {
	return services.Wrap(services.ErrValidation, "api", op, "invalid request body", err)
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, services.Wrap(services.ErrValidation, "api", "query", key+" must be a non-negative integer", nil)
	}
	return v, nil
}

func queryBool(c *gin.Context, key string) (bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, services.Wrap(services.ErrValidation, "api", "query", key+" must be a boolean", nil)
	}
	return v, nil
}
