package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/lawvriksh/referral-engine/internal/engine"
	"github.com/lawvriksh/referral-engine/internal/ledger"
	"github.com/lawvriksh/referral-engine/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Router wires all handlers. Authentication happens upstream; callers
// arrive here with a validated identity.
func Router(eng *engine.Engine, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logMiddleware(logger))

	r.POST("/shares", func(c *gin.Context) {
		handleRecordShare(c, eng)
	})
	r.GET("/leaderboard", func(c *gin.Context) {
		handleLeaderboard(c, eng)
	})
	r.GET("/leaderboard/around-me", func(c *gin.Context) {
		handleAroundMe(c, eng)
	})
	r.GET("/leaderboard/top-performers", func(c *gin.Context) {
		handleTopPerformers(c, eng)
	})
	r.PUT("/users", func(c *gin.Context) {
		handleSyncUser(c, eng)
	})
	return r
}

type shareRequest struct {
	UserID    string     `json:"userId" binding:"required"`
	Platform  string     `json:"platform" binding:"required"`
	Timestamp *time.Time `json:"timestamp"`
}

func handleRecordShare(c *gin.Context, eng *engine.Engine) {
	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := eng.RecordShare(c.Request.Context(), req.UserID, req.Platform, derefTime(req.Timestamp))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func handleLeaderboard(c *gin.Context, eng *engine.Engine) {
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 50)

	board, err := eng.Leaderboard(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, board)
}

func handleAroundMe(c *gin.Context, eng *engine.Engine) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	radius := queryInt(c, "radius", 5)

	view, err := eng.AroundMe(c.Request.Context(), userID, radius)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

func handleTopPerformers(c *gin.Context, eng *engine.Engine) {
	period := models.Period(c.DefaultQuery("period", string(models.PeriodWeekly)))
	limit := queryInt(c, "limit", 10)

	view, err := eng.TopPerformers(c.Request.Context(), period, limit)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

type syncUserRequest struct {
	ID       string     `json:"id" binding:"required"`
	Name     string     `json:"name" binding:"required"`
	JoinedAt *time.Time `json:"joinedAt"`
}

func handleSyncUser(c *gin.Context, eng *engine.Engine) {
	var req syncUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user := models.User{ID: req.ID, Name: req.Name, JoinedAt: derefTime(req.JoinedAt)}
	if err := eng.SyncUser(c.Request.Context(), user); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": req.ID})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrUnknownUser):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return -1 // out of range, rejected by engine validation
	}
	return val
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func logMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"status":   c.Writer.Status(),
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"latency":  time.Since(start).String(),
			"clientIP": c.ClientIP(),
		}).Info("request completed")
	}
}
