// Package api exposes the relay's HTTP intake and inspection endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"otprelay/internal/config"
	"otprelay/internal/constants"
	"otprelay/internal/journal"
	"otprelay/internal/logger"
	"otprelay/internal/notify"
	"otprelay/internal/pipeline"
	"otprelay/internal/source"
	"otprelay/internal/state"
	"otprelay/pkg/errors"
	"otprelay/pkg/models"
)

type SMSReceiver interface {
	Receive(ctx context.Context, sender string, parts []string, ts time.Time) (string, error)
}

type NotificationObserver interface {
	Observe(ctx context.Context, n source.Notification) (string, error)
}

type Submitter interface {
	Submit(ctx context.Context, ev models.RawMessageEvent) (pipeline.Outcome, error)
}

type LastRelayedReader interface {
	Get(ctx context.Context) (state.LastRelayedOtp, bool, error)
}

type DiagnosticsReader interface {
	Recent(limit int) []notify.Notification
}

type InboxWriter interface {
	Insert(ctx context.Context, m source.StoredMessage) (int64, error)
}

type ConfigApplier interface {
	Apply(section string, values map[string]interface{}) error
}

type ConfigPublisher interface {
	Enabled() bool
	PublishSectionUpdate(ctx context.Context, section string, values map[string]interface{}, changedBy string) error
}

// Deps wires the handler. Nil optional collaborators disable their routes'
// behaviour with 503 responses.
type Deps struct {
	SMS           SMSReceiver
	Notifications NotificationObserver
	Pipeline      Submitter
	LastRelayed   LastRelayedReader
	Diagnostics   DiagnosticsReader
	Journal       journal.Journal
	Inbox         InboxWriter
	Live          *config.Live
	Config        ConfigApplier
	Publisher     ConfigPublisher
	Logger        logger.Logger
}

type Handler struct {
	deps Deps
}

func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = logger.NopLogger()
	}
	return &Handler{deps: deps}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/sms", h.ReceiveSMS)
		v1.POST("/notifications", h.ObserveNotification)
		v1.POST("/test", h.SendTest)
		v1.GET("/last-relayed", h.GetLastRelayed)
		v1.GET("/diagnostics", h.ListDiagnostics)
		v1.GET("/journal", h.ListJournal)
		v1.POST("/inbox", h.InsertInbox)
		v1.GET("/config", h.GetConfig)
		v1.PUT("/config/:section", h.UpdateConfig)
	}
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.deps.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.deps.Logger.WarnwCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}

func (h *Handler) bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
}

func unavailable(what string) error {
	return errors.ErrServiceUnavailable.WithMessage(what + " is disabled")
}

type SMSRequest struct {
	Sender    string    `json:"sender" binding:"required"`
	Parts     []string  `json:"parts"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ReceiveSMS godoc
// @Summary      Hand an inbound SMS to the relay queue
// @Tags         intake
// @Accept       json
// @Produce      json
// @Param        sms  body      SMSRequest  true  "Inbound SMS, single or multipart"
// @Success      202  {object}  map[string]string
// @Failure      400  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /sms [post]
func (h *Handler) ReceiveSMS(c *gin.Context) {
	if h.deps.SMS == nil {
		h.HandleError(c, unavailable("broadcast intake"))
		return
	}

	var req SMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	parts := req.Parts
	if len(parts) == 0 && req.Text != "" {
		parts = []string{req.Text}
	}

	id, err := h.deps.SMS.Receive(c.Request.Context(), req.Sender, parts, req.Timestamp)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

// ObserveNotification godoc
// @Summary      Offer a posted notification to the relay
// @Tags         intake
// @Accept       json
// @Produce      json
// @Param        notification  body      source.Notification  true  "Posted notification"
// @Success      200           {object}  map[string]interface{}
// @Failure      400           {object}  map[string]interface{}
// @Router       /notifications [post]
func (h *Handler) ObserveNotification(c *gin.Context) {
	if h.deps.Notifications == nil {
		h.HandleError(c, unavailable("notification intake"))
		return
	}

	var n source.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		h.bindError(c, err)
		return
	}
	if n.PostedAt.IsZero() {
		n.PostedAt = time.Now().UTC()
	}

	reason, err := h.deps.Notifications.Observe(c.Request.Context(), n)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accepted": reason == source.ReasonAccepted,
		"reason":   reason,
	})
}

type TestRequest struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// SendTest godoc
// @Summary      Run a synthetic message through the pipeline
// @Tags         relay
// @Accept       json
// @Produce      json
// @Param        test  body      TestRequest  false  "Optional sender and text"
// @Success      202   {object}  pipeline.Outcome
// @Success      200   {object}  pipeline.Outcome
// @Failure      503   {object}  map[string]interface{}
// @Router       /test [post]
func (h *Handler) SendTest(c *gin.Context) {
	if h.deps.Pipeline == nil {
		h.HandleError(c, unavailable("pipeline"))
		return
	}

	var req TestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.bindError(c, err)
			return
		}
	}

	now := time.Now().UTC()
	if req.Sender == "" {
		req.Sender = "otprelay-test"
	}
	if req.Text == "" {
		req.Text = fmt.Sprintf("Your otprelay test code is %06d", now.UnixNano()%1000000)
	}

	out, err := h.deps.Pipeline.Submit(c.Request.Context(), models.RawMessageEvent{
		ID:              uuid.New().String(),
		Text:            req.Text,
		Sender:          req.Sender,
		SourceTimestamp: now,
		Kind:            models.KindTest,
		Origin:          models.OriginAPI,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	status := http.StatusOK
	if out.Status == pipeline.StatusDispatched {
		status = http.StatusAccepted
	}
	c.JSON(status, out)
}

// GetLastRelayed godoc
// @Summary      Last successfully relayed OTP
// @Tags         relay
// @Produce      json
// @Success      200  {object}  state.LastRelayedOtp
// @Failure      404  {object}  map[string]interface{}
// @Router       /last-relayed [get]
func (h *Handler) GetLastRelayed(c *gin.Context) {
	if h.deps.LastRelayed == nil {
		h.HandleError(c, unavailable("state store"))
		return
	}

	v, found, err := h.deps.LastRelayed.Get(c.Request.Context())
	if err != nil {
		h.HandleError(c, errors.ErrInternal.WithCause(err))
		return
	}
	if !found {
		h.HandleError(c, errors.ErrNotFound.WithMessage("nothing relayed yet"))
		return
	}
	c.JSON(http.StatusOK, v)
}

// ListDiagnostics godoc
// @Summary      Recent user-facing diagnostics, persistent ones first
// @Tags         relay
// @Produce      json
// @Param        limit  query     int  false  "Maximum entries"
// @Success      200    {array}   notify.Notification
// @Router       /diagnostics [get]
func (h *Handler) ListDiagnostics(c *gin.Context) {
	if h.deps.Diagnostics == nil {
		c.JSON(http.StatusOK, []notify.Notification{})
		return
	}

	limit, err := queryInt(c, "limit", constants.DefaultDiagnosticsLimit)
	if err != nil {
		h.bindError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.deps.Diagnostics.Recent(limit))
}

// ListJournal godoc
// @Summary      Relay attempts, newest first
// @Tags         relay
// @Produce      json
// @Param        limit       query     int     false  "Maximum entries"
// @Param        sender_key  query     string  false  "Filter by normalized sender"
// @Param        failed      query     bool    false  "Only failed attempts"
// @Success      200         {array}   journal.Entry
// @Router       /journal [get]
func (h *Handler) ListJournal(c *gin.Context) {
	if h.deps.Journal == nil {
		h.HandleError(c, unavailable("journal"))
		return
	}

	limit, err := queryInt(c, "limit", constants.DefaultJournalLimit)
	if err != nil {
		h.bindError(c, err)
		return
	}
	failedOnly, err := strconv.ParseBool(c.DefaultQuery("failed", "false"))
	if err != nil {
		h.bindError(c, err)
		return
	}

	entries, err := h.deps.Journal.List(c.Request.Context(), journal.Query{
		Limit:      limit,
		SenderKey:  c.Query("sender_key"),
		FailedOnly: failedOnly,
	})
	if err != nil {
		h.HandleError(c, errors.ErrInternal.WithCause(err))
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}

type InboxRequest struct {
	Address    string    `json:"address" binding:"required"`
	Body       string    `json:"body" binding:"required"`
	ReceivedAt time.Time `json:"received_at"`
}

// InsertInbox godoc
// @Summary      Store a message in the inbox table
// @Description  The observer and poller pick the row up through the change feed or the next poll.
// @Tags         intake
// @Accept       json
// @Produce      json
// @Param        message  body      InboxRequest  true  "Message row"
// @Success      201      {object}  map[string]int64
// @Failure      403      {object}  map[string]interface{}
// @Router       /inbox [post]
func (h *Handler) InsertInbox(c *gin.Context) {
	if h.deps.Inbox == nil {
		h.HandleError(c, unavailable("message store"))
		return
	}

	var req InboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = time.Now().UTC()
	}

	id, err := h.deps.Inbox.Insert(c.Request.Context(), source.StoredMessage{
		Address:    req.Address,
		Body:       req.Body,
		ReceivedAt: req.ReceivedAt,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// GetConfig godoc
// @Summary      Current hot-reloadable settings
// @Tags         config
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /config [get]
func (h *Handler) GetConfig(c *gin.Context) {
	if h.deps.Live == nil {
		h.HandleError(c, unavailable("live config"))
		return
	}

	c.JSON(http.StatusOK, settingsView(h.deps.Live.Get()))
}

// UpdateConfig godoc
// @Summary      Update one hot-reloadable section
// @Description  Broadcast through the config topic when one is configured, applied locally otherwise.
// @Tags         config
// @Accept       json
// @Produce      json
// @Param        section  path      string                  true  "extraction, sender, forwarding or notifications"
// @Param        values   body      map[string]interface{}  true  "Keys to change"
// @Success      200      {object}  map[string]string
// @Success      202      {object}  map[string]string
// @Failure      400      {object}  map[string]interface{}
// @Router       /config/{section} [put]
func (h *Handler) UpdateConfig(c *gin.Context) {
	section := c.Param("section")

	var values map[string]interface{}
	if err := c.ShouldBindJSON(&values); err != nil {
		h.bindError(c, err)
		return
	}

	changedBy := c.GetHeader("X-Changed-By")
	if changedBy == "" {
		changedBy = "api"
	}

	if h.deps.Publisher != nil && h.deps.Publisher.Enabled() {
		if err := h.deps.Publisher.PublishSectionUpdate(c.Request.Context(), section, values, changedBy); err != nil {
			h.HandleError(c, errors.ErrServiceUnavailable.WithCause(err))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"section": section, "status": "published"})
		return
	}

	if h.deps.Config == nil {
		h.HandleError(c, unavailable("config updates"))
		return
	}
	if err := h.deps.Config.Apply(section, values); err != nil {
		h.HandleError(c, err)
		return
	}
	h.deps.Logger.InfowCtx(c.Request.Context(), "Config section updated through API", "section", section, "changed_by", changedBy)
	c.JSON(http.StatusOK, gin.H{"section": section, "status": "applied"})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return v, nil
}
