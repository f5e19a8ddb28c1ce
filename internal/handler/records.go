package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"tutorledger/internal/auth"
	"tutorledger/internal/ledger"
)

func (h *Handler) GetSnapshot(c *gin.Context) {
	snap, err := h.Ledger.Snapshot(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) ClearSnapshot(c *gin.Context) {
	if err := h.Ledger.Clear(c.Request.Context(), auth.UserID(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetSummary(c *gin.Context) {
	snap, err := h.Ledger.Snapshot(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger.Summarize(snap))
}

func (h *Handler) UpsertStudent(c *gin.Context) {
	var st ledger.Student
	if err := c.ShouldBindJSON(&st); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.Ledger.UpsertStudent(c.Request.Context(), auth.UserID(c), st)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) AddSession(c *gin.Context) {
	var ws ledger.WorkSession
	if err := c.ShouldBindJSON(&ws); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.Ledger.AddSession(c.Request.Context(), auth.UserID(c), ws)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// FixStats recomputes session totals and grades.
func (h *Handler) FixStats(c *gin.Context) {
	n, err := h.Ledger.FixStats(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": n})
}

func (h *Handler) AddMark(c *gin.Context) {
	var g ledger.GradeRecord
	if err := c.ShouldBindJSON(&g); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.Ledger.AddMark(c.Request.Context(), auth.UserID(c), g)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) RecordAttendance(c *gin.Context) {
	var a ledger.AttendanceRecord
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.Ledger.RecordAttendance(c.Request.Context(), auth.UserID(c), a)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) AddPayment(c *gin.Context) {
	var p ledger.PaymentRecord
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.Ledger.AddPayment(c.Request.Context(), auth.UserID(c), p)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var patch ledger.Settings
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.Ledger.UpdateSettings(c.Request.Context(), auth.UserID(c), patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// deleteBy adapts an id-keyed ledger delete to a route handler.
func (h *Handler) deleteBy(del func(ctx context.Context, userID, id string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := del(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
			h.writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
