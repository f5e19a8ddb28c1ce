package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tutorledger/internal/auth"
	"tutorledger/internal/syncer"
)

// Export downloads the snapshot as a backup file.
func (h *Handler) Export(c *gin.Context) {
	raw, err := h.Ledger.Export(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	name := "tutorledger-backup-" + time.Now().UTC().Format("2006-01-02") + ".json"
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/json", raw)
}

// Import replaces the snapshot with an uploaded backup, either a multipart
// "file" field or a raw JSON body.
func (h *Handler) Import(c *gin.Context) {
	var (
		raw []byte
		err error
	)
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		file, _, ferr := c.Request.FormFile("file")
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()
		raw, err = io.ReadAll(io.LimitReader(file, maxImportBytes))
	} else {
		raw, err = readBody(c)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}
	snap, err := h.Ledger.Import(c.Request.Context(), auth.UserID(c), raw)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"students":    len(snap.Students),
		"hours":       len(snap.Hours),
		"marks":       len(snap.Marks),
		"attendance":  len(snap.Attendance),
		"payments":    len(snap.Payments),
		"lastUpdated": snap.LastUpdated,
	})
}

// SyncNow runs a manual cycle. A cycle already running yields 409.
func (h *Handler) SyncNow(c *gin.Context) {
	userID := auth.UserID(c)
	res := h.Sync.Sync(context.WithoutCancel(c.Request.Context()), userID, syncer.TriggerManual)
	if res.Outcome == syncer.OutcomeInProgress {
		c.JSON(http.StatusConflict, gin.H{"error": syncer.ErrSyncInProgress.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "status": h.Board.Get(userID)})
}

// SyncStatus returns the latest status line for the user.
func (h *Handler) SyncStatus(c *gin.Context) {
	userID := auth.UserID(c)
	c.JSON(http.StatusOK, gin.H{
		"status":          h.Board.Get(userID),
		"syncing":         h.Sync.Syncing(userID),
		"remote":          h.Sync.RemoteName(),
		"remote_disabled": h.Sync.RemoteDisabled(),
	})
}

// SetAutoSync toggles the user's auto-sync timer. Turning it on also
// requests an immediate cycle.
func (h *Handler) SetAutoSync(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := auth.UserID(c)
	if *req.Enabled {
		if h.Auto.Enable(userID) {
			h.requestSync(userID, syncer.TriggerToggle)
		}
	} else {
		h.Auto.Disable(userID)
	}
	c.JSON(http.StatusOK, gin.H{"auto_sync": h.Auto.Enabled(userID), "interval": h.Auto.Interval().String()})
}
