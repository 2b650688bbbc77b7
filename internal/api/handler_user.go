package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jtich40/event-driven-integration-demo/pkg/middleware"
	"github.com/jtich40/event-driven-integration-demo/pkg/models"
	"github.com/jtich40/event-driven-integration-demo/pkg/store"
)

// EventPublisher defines the interface for publishing events.
// *events.Publisher implements it.
type EventPublisher interface {
	PublishUserCreated(ctx context.Context, event models.UserCreatedEvent, correlationID string) error
}

// UserHandler handles user-related HTTP requests.
type UserHandler struct {
	Users     store.Table[models.User]
	Publisher EventPublisher

	logger *zap.Logger
	now    func() time.Time
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users store.Table[models.User], pub EventPublisher, logger *zap.Logger) *UserHandler {
	return &UserHandler{Users: users, Publisher: pub, logger: logger, now: time.Now}
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

// CreateUser stores a new user and publishes a UserCreated event for it.
// The request fails if either step fails.
func (h *UserHandler) CreateUser(c *gin.Context) {
	correlationID := middleware.GetCorrelationID(c)
	logger := h.logger.With(zap.String("correlation_id", correlationID))

	var req models.CreateUserRequest
	err := c.ShouldBindJSON(&req)
	if err == nil {
		err = req.Normalize()
	}
	if err != nil {
		logger.Info("Rejected create user request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "reason": err.Error()})
		return
	}

	now := h.now().UTC()
	user := models.User{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Email:     req.Email,
		CreatedAt: now,
	}

	ctx := c.Request.Context()
	if err := h.Users.Put(ctx, user); err != nil {
		logger.Error("Failed to store user", zap.String("user_id", user.ID), zap.Error(err))
		internalError(c)
		return
	}

	event := models.NewUserCreatedEvent(uuid.New().String(), user, now)
	if err := h.Publisher.PublishUserCreated(ctx, event, correlationID); err != nil {
		// The user row stays; the caller retries with a new request.
		logger.Error("Failed to publish user created event",
			zap.String("user_id", user.ID),
			zap.String("event_id", event.EventID),
			zap.Error(err))
		internalError(c)
		return
	}

	logger.Info("User created",
		zap.String("user_id", user.ID),
		zap.String("event_id", event.EventID))
	c.JSON(http.StatusCreated, user)
}

// GetUser returns a single user, or 404 with an empty body.
func (h *UserHandler) GetUser(c *gin.Context) {
	userID := c.Param("id")

	user, err := h.Users.Get(c.Request.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Failed to fetch user",
			zap.String("user_id", userID),
			zap.String("correlation_id", middleware.GetCorrelationID(c)),
			zap.Error(err))
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, user)
}

// ListUsers returns every user, newest first.
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.Users.Scan(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list users",
			zap.String("correlation_id", middleware.GetCorrelationID(c)),
			zap.Error(err))
		internalError(c)
		return
	}

	sort.SliceStable(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.After(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	if users == nil {
		users = []models.User{}
	}

	c.JSON(http.StatusOK, users)
}
