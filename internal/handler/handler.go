package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-feeds/internal/model"
	"go-feeds/internal/scheduler"
	"go-feeds/internal/service"
	"go-feeds/internal/store"
)

// 推送文档的大小上限
const maxPushBody = 5 << 20

type Reimporter interface {
	RequestReimport(ctx context.Context, id string) error
}

type PushReceiver interface {
	Receive(ctx context.Context, subscriptionID string, body io.Reader) (int, error)
}

type SchedulerRunner interface {
	RunNow(ctx context.Context) (scheduler.RunResult, error)
	GetNextRunTime() time.Time
}

type BlobReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, string, error)
}

// Deps 路由依赖,由 main 组装
type Deps struct {
	Items          *service.ItemService
	Subscriptions  *service.SubscriptionService
	Feeds          *service.FeedService
	Accounts       *service.AccountService
	Settings       *service.SettingsService
	LLM            *service.LLMService
	Status         *service.StatusService
	Blobs          BlobReader
	Reimporter     Reimporter
	Push           PushReceiver
	Scheduler      SchedulerRunner
	HubVerifyToken string
	Logger         *slog.Logger
}

type Handler struct {
	Deps
}

func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// feed hub 回调
	hooks := r.Group("/webhooks")
	{
		hooks.GET("/feeds/:subscriptionID", h.VerifyPush)
		hooks.POST("/feeds/:subscriptionID", h.ReceivePush)
	}

	// API
	api := r.Group("/api")
	{
		// Items
		api.GET("/items", h.ListItems)
		api.POST("/items", h.SaveItem)
		api.GET("/items/:id", h.GetItem)
		api.GET("/items/:id/files/:name", h.GetItemFile)
		api.POST("/items/:id/reimport", h.ReimportItem)

		// Subscriptions
		api.GET("/subscriptions", h.ListSubscriptions)
		api.POST("/subscriptions", h.Subscribe)
		api.DELETE("/subscriptions/:id", h.Unsubscribe)
		api.POST("/subscriptions/:id/resubscribe", h.Resubscribe)
		api.PUT("/subscriptions/:id/schedule", h.UpdateSchedule)
		api.POST("/subscriptions/:id/fetch", h.FetchSubscription)

		// Accounts
		api.DELETE("/accounts/:id", h.WipeoutAccount)

		// Scheduler
		api.POST("/scheduler/run", h.RunScheduler)

		// Config
		api.GET("/config", h.GetConfig)
		api.POST("/config", h.SaveConfig)

		// LLM
		api.GET("/llm/models", h.GetLLMModels)
		api.POST("/llm/test", h.TestLLMConnection)

		// Status
		api.GET("/status", h.GetStatus)
	}
}

// abortWithError 把领域错误映射为 HTTP 状态码
func (h *Handler) abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrImportInProgress):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// ===== 推送相关 =====

// VerifyPush 回应 hub 的订阅确认
func (h *Handler) VerifyPush(c *gin.Context) {
	mode := c.Query("hub.mode")
	challenge := c.Query("hub.challenge")
	if challenge == "" || (mode != "subscribe" && mode != "unsubscribe") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hub verification request"})
		return
	}
	if h.HubVerifyToken != "" && c.Query("hub.verify_token") != h.HubVerifyToken {
		c.JSON(http.StatusForbidden, gin.H{"error": "verify token mismatch"})
		return
	}

	sub, err := h.Subscriptions.Get(c.Request.Context(), c.Param("subscriptionID"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if mode == "subscribe" && !sub.IsActive {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription is not active"})
		return
	}

	c.String(http.StatusOK, challenge)
}

func (h *Handler) ReceivePush(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxPushBody)
	count, err := h.Push.Receive(c.Request.Context(), c.Param("subscriptionID"), body)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"new_items": count})
}

// ===== Item相关 =====

func (h *Handler) ListItems(c *gin.Context) {
	accountID := c.Query("account")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account is required"})
		return
	}

	items, err := h.Items.ListDelivered(c.Request.Context(), accountID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	if status := c.Query("import_status"); status != "" {
		filtered := items[:0]
		for _, item := range items {
			if string(item.ImportState.Status) == status {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  items,
		"total": len(items),
	})
}

func (h *Handler) SaveItem(c *gin.Context) {
	var req service.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	item, err := h.Items.Save(c.Request.Context(), req)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) GetItem(c *gin.Context) {
	item, err := h.Items.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// GetItemFile 读取导入生成的文件,如 mainContent.md
func (h *Handler) GetItemFile(c *gin.Context) {
	ctx := c.Request.Context()
	item, err := h.Items.Get(ctx, c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	name := c.Param("name")
	if !store.IsItemFile(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown file " + name})
		return
	}

	content, contentType, err := h.Blobs.ReadFile(ctx, store.BlobPath(item.AccountID, item.ID, name))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, content)
}

func (h *Handler) ReimportItem(c *gin.Context) {
	if err := h.Reimporter.RequestReimport(c.Request.Context(), c.Param("id")); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "reimport requested"})
}

// ===== Subscription相关 =====

func (h *Handler) ListSubscriptions(c *gin.Context) {
	accountID := c.Query("account")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account is required"})
		return
	}

	subs, err := h.Subscriptions.List(c.Request.Context(), accountID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

func (h *Handler) Subscribe(c *gin.Context) {
	var sub model.UserFeedSubscription
	if err := c.ShouldBindJSON(&sub); err != nil {
		badRequest(c, err)
		return
	}

	created, err := h.Subscriptions.Subscribe(c.Request.Context(), &sub)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (h *Handler) Unsubscribe(c *gin.Context) {
	if err := h.Subscriptions.Unsubscribe(c.Request.Context(), c.Param("id")); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unsubscribed"})
}

func (h *Handler) Resubscribe(c *gin.Context) {
	if err := h.Subscriptions.Resubscribe(c.Request.Context(), c.Param("id")); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "resubscribed"})
}

func (h *Handler) UpdateSchedule(c *gin.Context) {
	var sched *model.DeliverySchedule
	if err := c.ShouldBindJSON(&sched); err != nil {
		badRequest(c, err)
		return
	}

	err := h.Subscriptions.UpdateDeliverySchedule(c.Request.Context(), c.Param("id"), sched)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.abortWithError(c, err)
			return
		}
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "saved"})
}

// FetchSubscription 手动拉取一次订阅
func (h *Handler) FetchSubscription(c *gin.Context) {
	ctx := c.Request.Context()
	sub, err := h.Subscriptions.Get(ctx, c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	count, err := h.Feeds.FetchSubscription(ctx, sub)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"new_items": count})
}

func (h *Handler) WipeoutAccount(c *gin.Context) {
	if err := h.Accounts.Wipeout(c.Request.Context(), c.Param("id")); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// ===== Scheduler相关 =====

func (h *Handler) RunScheduler(c *gin.Context) {
	result, err := h.Scheduler.RunNow(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ===== Config相关 =====

func (h *Handler) GetConfig(c *gin.Context) {
	settings, err := h.Settings.All(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) SaveConfig(c *gin.Context) {
	var input map[string]string
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.Settings.Save(c.Request.Context(), input); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "saved"})
}

// ===== LLM相关 =====

func (h *Handler) GetLLMModels(c *gin.Context) {
	models, err := h.LLM.GetModels(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"models": models})
}

func (h *Handler) TestLLMConnection(c *gin.Context) {
	response, err := h.LLM.TestConnection(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "connected",
		"response": response,
	})
}

// ===== Status相关 =====

func (h *Handler) GetStatus(c *gin.Context) {
	status, err := h.Status.GetSystemStatus(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	// 添加定时任务信息
	if h.Scheduler != nil {
		status.NextIntervalRun = h.Scheduler.GetNextRunTime()
	}

	c.JSON(http.StatusOK, status)
}
