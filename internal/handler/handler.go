package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tutorledger/internal/auth"
	"tutorledger/internal/ledger"
	"tutorledger/internal/notify"
	"tutorledger/internal/queue"
	"tutorledger/internal/syncer"
)

const maxImportBytes = 10 << 20

// Deps are the collaborators the HTTP layer drives.
type Deps struct {
	Ledger *ledger.Service
	Sync   *syncer.Coordinator
	Auto   *syncer.AutoSync
	Board  *notify.Board
	Issuer *auth.Issuer
	Log    zerolog.Logger

	// Queue, when set, receives sign-in and toggle syncs; otherwise they run
	// in a goroutine.
	Queue        queue.Queue
	AutoOnSignIn bool
	HealthChecks map[string]func(context.Context) bool
}

// Handler serves the bookkeeping and sync API.
type Handler struct {
	Deps
	log zerolog.Logger
}

// New creates a handler.
func New(d Deps) *Handler {
	return &Handler{Deps: d, log: d.Log.With().Str("component", "http").Logger()}
}

// Register mounts the routes. authed runs before every /v1 route except
// token issue and refresh; UserAuth is always applied first.
func (h *Handler) Register(r gin.IRouter, authed ...gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)
	r.POST("/v1/auth/token", h.IssueToken)
	r.POST("/v1/auth/refresh", h.RefreshToken)

	g := r.Group("/v1", append([]gin.HandlerFunc{auth.UserAuth(h.Issuer)}, authed...)...)
	g.GET("/snapshot", h.GetSnapshot)
	g.DELETE("/snapshot", h.ClearSnapshot)
	g.GET("/summary", h.GetSummary)

	g.PUT("/students", h.UpsertStudent)
	g.DELETE("/students/:id", h.deleteBy(h.Ledger.DeleteStudent))
	g.POST("/sessions", h.AddSession)
	g.POST("/sessions/fix", h.FixStats)
	g.DELETE("/sessions/:id", h.deleteBy(h.Ledger.DeleteSession))
	g.POST("/marks", h.AddMark)
	g.DELETE("/marks/:id", h.deleteBy(h.Ledger.DeleteMark))
	g.POST("/attendance", h.RecordAttendance)
	g.DELETE("/attendance/:id", h.deleteBy(h.Ledger.DeleteAttendance))
	g.POST("/payments", h.AddPayment)
	g.DELETE("/payments/:id", h.deleteBy(h.Ledger.DeletePayment))
	g.PATCH("/settings", h.UpdateSettings)

	g.GET("/export", h.Export)
	g.POST("/import", h.Import)

	g.POST("/sync", h.SyncNow)
	g.GET("/sync/status", h.SyncStatus)
	g.PUT("/sync/auto", h.SetAutoSync)
}

// Healthz reports dependency health.
func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	out := gin.H{"status": "ok"}
	for name, check := range h.HealthChecks {
		ok := check(c.Request.Context())
		out[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, out)
}

// IssueToken signs a user in and kicks off a sign-in sync.
func (h *Handler) IssueToken(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := h.Issuer.Issue(req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	h.requestSync(req.UserID, syncer.TriggerSignIn)
	if h.AutoOnSignIn && h.Auto != nil {
		h.Auto.Enable(req.UserID)
	}
	c.JSON(http.StatusCreated, tokenBody(tokens))
}

// RefreshToken trades a refresh token for a new token pair.
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := h.Issuer.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, tokenBody(tokens))
}

func tokenBody(t auth.TokenPair) gin.H {
	return gin.H{
		"access_token":  t.AccessToken,
		"refresh_token": t.RefreshToken,
		"expires_at":    t.AccessExp.Unix(),
	}
}

// requestSync hands a background sync to the queue, or runs it directly when
// no queue is configured or publishing fails.
func (h *Handler) requestSync(userID string, trigger syncer.Trigger) {
	if h.Queue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := h.Queue.Publish(ctx, queue.Message{Type: queue.TypeSync, UserID: userID, Trigger: string(trigger)})
		if err == nil {
			return
		}
		h.log.Warn().Err(err).Str("user_id", userID).Msg("queue publish failed, syncing inline")
	}
	go h.Sync.Sync(context.Background(), userID, trigger)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "fields": verr.Fields})
	case errors.Is(err, ledger.ErrInvalidImportFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func readBody(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	return io.ReadAll(c.Request.Body)
}
