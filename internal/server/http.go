package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"smartcs/internal/conf"
	"smartcs/internal/domain"
	"smartcs/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-kratos/kratos/v2/log"
)

// HTTPServer HTTP服务器
type HTTPServer struct {
	router  *gin.Engine
	gateway *service.GatewayService
	admin   *service.AdminService
	server  *http.Server
	log     *log.Helper
}

// NewHTTPServer 创建HTTP服务器
func NewHTTPServer(gateway *service.GatewayService, admin *service.AdminService, cfg conf.ServerConfig, addr string, logger log.Logger) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &HTTPServer{
		router:  router,
		gateway: gateway,
		admin:   admin,
		log:     log.NewHelper(logger),
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:           addr,
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	return s
}

// registerRoutes 注册路由
func (s *HTTPServer) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "model-gateway",
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/invoke", s.handleInvoke)

		v1.POST("/providers", s.handleCreateProvider)
		v1.GET("/providers", s.handleListProviders)
		v1.GET("/providers/:id", s.handleGetProvider)
		v1.PUT("/providers/:id", s.handleUpdateProvider)
		v1.DELETE("/providers/:id", s.handleDeleteProvider)

		v1.POST("/models", s.handleCreateModel)
		v1.GET("/models", s.handleListModels)
		v1.GET("/models/:id", s.handleGetModel)
		v1.PUT("/models/:id", s.handleUpdateModel)
		v1.DELETE("/models/:id", s.handleDeleteModel)
		v1.GET("/models/:id/health", s.handleModelHealth)

		v1.POST("/groups", s.handleCreateGroup)
		v1.GET("/groups", s.handleListGroups)
		v1.GET("/groups/:id", s.handleGetGroup)
		v1.PUT("/groups/:id", s.handleUpdateGroup)
		v1.DELETE("/groups/:id", s.handleDeleteGroup)

		v1.GET("/quotas/:subject", s.handleGetQuota)
		v1.PUT("/quotas/:subject", s.handleSaveQuota)
		v1.POST("/quotas/:subject/reset", s.handleResetQuota)

		v1.GET("/records", s.handleListRecords)
	}
}

// respondError 错误到状态码的映射
func (s *HTTPServer) respondError(c *gin.Context, err error) {
	switch {
	case service.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNoEligibleModel),
		errors.Is(err, domain.ErrModelNotSelectable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidParams),
		errors.Is(err, domain.ErrInvalidModelName),
		errors.Is(err, domain.ErrInvalidProviderName),
		errors.Is(err, domain.ErrInvalidProviderID),
		errors.Is(err, domain.ErrInvalidEndpoint),
		errors.Is(err, domain.ErrInvalidMaxTokens),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidGroupName),
		errors.Is(err, domain.ErrInvalidStrategy),
		errors.Is(err, domain.ErrInvalidWeight),
		errors.Is(err, domain.ErrInvalidMaxRetries):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.log.Errorf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// handleInvoke 模型调用入口
func (s *HTTPServer) handleInvoke(c *gin.Context) {
	var req service.InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.gateway.Invoke(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) handleCreateProvider(c *gin.Context) {
	var req service.ProviderPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	provider, err := s.admin.CreateProvider(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, provider)
}

func (s *HTTPServer) handleListProviders(c *gin.Context) {
	providers, err := s.admin.ListProviders(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": providers})
}

func (s *HTTPServer) handleGetProvider(c *gin.Context) {
	provider, err := s.admin.GetProvider(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, provider)
}

func (s *HTTPServer) handleUpdateProvider(c *gin.Context) {
	var req service.ProviderPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	provider, err := s.admin.UpdateProvider(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, provider)
}

func (s *HTTPServer) handleDeleteProvider(c *gin.Context) {
	if err := s.admin.DeleteProvider(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *HTTPServer) handleCreateModel(c *gin.Context) {
	var req service.ModelPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	model, err := s.admin.CreateModel(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model)
}

func (s *HTTPServer) handleListModels(c *gin.Context) {
	filter := domain.ModelFilter{
		ProviderID: c.Query("provider_id"),
		Capability: c.Query("capability"),
		OnlyActive: c.Query("active") == "true",
	}

	models, err := s.admin.ListModels(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

func (s *HTTPServer) handleGetModel(c *gin.Context) {
	model, err := s.admin.GetModel(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model)
}

func (s *HTTPServer) handleUpdateModel(c *gin.Context) {
	var req service.ModelPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	model, err := s.admin.UpdateModel(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model)
}

func (s *HTTPServer) handleDeleteModel(c *gin.Context) {
	if err := s.admin.DeleteModel(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *HTTPServer) handleModelHealth(c *gin.Context) {
	status, err := s.gateway.ModelHealth(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *HTTPServer) handleCreateGroup(c *gin.Context) {
	var req service.GroupPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := s.admin.CreateGroup(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (s *HTTPServer) handleListGroups(c *gin.Context) {
	groups, err := s.admin.ListGroups(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (s *HTTPServer) handleGetGroup(c *gin.Context) {
	group, err := s.admin.GetGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (s *HTTPServer) handleUpdateGroup(c *gin.Context) {
	var req service.GroupPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := s.admin.UpdateGroup(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (s *HTTPServer) handleDeleteGroup(c *gin.Context) {
	if err := s.admin.DeleteGroup(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *HTTPServer) handleGetQuota(c *gin.Context) {
	quota, err := s.gateway.SubjectQuota(c.Request.Context(), c.Param("subject"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quota)
}

func (s *HTTPServer) handleSaveQuota(c *gin.Context) {
	var req service.QuotaPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quota := &domain.Quota{
		SubjectID: c.Param("subject"),
		Cadence:   domain.QuotaCadence(req.Cadence),
		Limits: domain.QuotaLimits{
			MaxCalls:  req.MaxCalls,
			MaxTokens: req.MaxTokens,
			MaxCost:   req.MaxCost,
		},
	}
	if err := s.gateway.SaveQuota(c.Request.Context(), quota); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quota)
}

func (s *HTTPServer) handleResetQuota(c *gin.Context) {
	if err := s.gateway.ResetQuota(c.Request.Context(), c.Param("subject")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

func (s *HTTPServer) handleListRecords(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since timestamp"})
			return
		}
		since = parsed
	}

	filter := domain.CallRecordFilter{
		ModelID:   c.Query("model_id"),
		SubjectID: c.Query("subject_id"),
		Since:     since,
	}

	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	records, total, err := s.gateway.ListCallRecords(c.Request.Context(), filter, offset, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "total": total})
}

// Start 启动HTTP服务器
func (s *HTTPServer) Start() error {
	s.log.Infof("HTTP server listening on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop 优雅停止HTTP服务器，等待在途请求完成
func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
