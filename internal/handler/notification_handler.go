package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wamda.app/notifier/internal/adapter"
	"wamda.app/notifier/internal/backend"
	"wamda.app/notifier/internal/config"
	"wamda.app/notifier/internal/engine"
	"wamda.app/notifier/internal/entity"
	"wamda.app/notifier/internal/session"
	"wamda.app/notifier/pkg/response"
	pkgvalidator "wamda.app/notifier/pkg/validator"
)

type NotificationHandler struct {
	store    backend.Store
	realtime backend.Realtime
	log      *zap.Logger
	validate *validator.Validate
	upgrader websocket.Upgrader

	fetchLimit   int
	bufferLimit  int
	writeTimeout time.Duration
}

func NewNotificationHandler(store backend.Store, realtime backend.Realtime, cfg *config.Config, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		store:    store,
		realtime: realtime,
		log:      log,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // CORS is enforced at the router level
			},
		},
		fetchLimit:   cfg.FetchLimit,
		bufferLimit:  cfg.BufferLimit,
		writeTimeout: cfg.WriteTimeout,
	}
}

// REST Endpoints

func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	limit := queryInt(c, "limit", h.fetchLimit)
	offset := queryInt(c, "offset", 0)
	if limit <= 0 || limit > h.bufferLimit {
		limit = h.fetchLimit
	}
	if offset < 0 {
		offset = 0
	}

	notifications, err := h.store.NotificationsPage(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": notifications})
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	count, err := h.store.CountUnread(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.store.MarkAllRead(c.Request.Context(), userID); err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read"})
}

type createNotificationRequest struct {
	RecipientID int64  `json:"recipient_user_id" validate:"required,gt=0"`
	ActorID     *int64 `json:"actor_user_id" validate:"omitempty,gt=0"`
	Kind        string `json:"type" validate:"required,oneof=comment like new_follower"`
	PostID      *int64 `json:"post_id" validate:"omitempty,gt=0"`
	CommentID   *int64 `json:"comment_id" validate:"omitempty,gt=0"`
}

// CreateNotification is the producer endpoint: other services insert a row
// here and it fans out to the recipient's realtime channel.
func (h *NotificationHandler) CreateNotification(c *gin.Context) {
	var req createNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": pkgvalidator.FormatValidationError(err)})
		return
	}

	n := &entity.Notification{
		RecipientID: req.RecipientID,
		ActorID:     req.ActorID,
		Kind:        entity.ParseKind(req.Kind),
		PostID:      req.PostID,
		CommentID:   req.CommentID,
	}
	if err := h.store.CreateNotification(c.Request.Context(), n); err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": n})
}

// WebSocket Endpoint

type streamCommand struct {
	Action string `json:"action" validate:"required,oneof=mark_read sign_out"`
}

// Stream upgrades the connection and runs one notification engine for its
// lifetime. Every engine snapshot is pushed to the client as JSON; inbound
// commands drive mark-as-read and sign-out.
func (h *NotificationHandler) Stream(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("failed to upgrade websocket", zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.log.With(
		zap.String("conn_id", uuid.NewString()),
		zap.Int64("recipient_id", userID),
	)

	snapshots := make(chan engine.Snapshot, 16)
	eng := engine.New(h.store, h.realtime, log, func(s engine.Snapshot) {
		// Latest-wins when the socket can't keep up; every snapshot carries
		// the full state, so dropping an older one loses nothing.
		for {
			select {
			case snapshots <- s:
				return
			default:
				select {
				case <-snapshots:
				default:
				}
			}
		}
	})
	eng.SetLimits(h.fetchLimit, h.bufferLimit)

	sess := session.NewStore()
	defer sess.Close()

	binder := adapter.New(c.Request.Context(), eng, sess.Watch())
	defer binder.Close()

	sess.Set(userID)

	// Reader goroutine: handles client commands and detects disconnect.
	clientClosed := make(chan struct{})
	go func() {
		defer close(clientClosed)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			h.handleCommand(c.Request.Context(), raw, eng, sess, log)
		}
	}()

	for {
		select {
		case snap := <-snapshots:
			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				log.Warn("failed to write snapshot to websocket", zap.Error(err))
				return
			}
		case <-clientClosed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *NotificationHandler) handleCommand(ctx context.Context, raw []byte, eng *engine.Engine, sess *session.Store, log *zap.Logger) {
	var cmd streamCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		log.Debug("ignoring malformed client message", zap.Error(err))
		return
	}
	if err := h.validate.Struct(cmd); err != nil {
		log.Debug("ignoring invalid client command",
			zap.String("reason", pkgvalidator.FormatValidationError(err)))
		return
	}

	switch cmd.Action {
	case "mark_read":
		eng.MarkAllUnreadAsRead(ctx)
	case "sign_out":
		sess.Clear()
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
