package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"leadbridge/internal/archive"
	"leadbridge/internal/audit"
	"leadbridge/internal/callstore"
	"leadbridge/internal/leads"
	"leadbridge/internal/reporting"
	"leadbridge/internal/telephony"
	"leadbridge/pkg/logger"
)

// LeadService is the intake surface the API exposes.
type LeadService interface {
	Start(ctx context.Context, req leads.StartRequest) (leads.StartResult, error)
	Get(callID string) (callstore.Record, bool)
}

// SnapshotGetter loads settled leads. Implemented by the archive repos.
type SnapshotGetter interface {
	GetSnapshot(ctx context.Context, leadID string) (leads.Snapshot, error)
}

// Reporter summarizes outcomes.
type Reporter interface {
	Summarize(ctx context.Context) (reporting.Summary, error)
}

// AuditTrail exposes per-lead decision history.
type AuditTrail interface {
	Trail(ctx context.Context, leadID string) ([]audit.Event, error)
}

// Handlers carries the services behind the HTTP surface.
type Handlers struct {
	Leads     LeadService
	Snapshots SnapshotGetter
	Reports   Reporter
	Audit     AuditTrail

	// AgentStreamURL is baked into the contact leg's initial instructions.
	AgentStreamURL string
}

// StartLead launches both legs of a new lead.
func (h *Handlers) StartLead(c *gin.Context) {
	var req leads.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := h.Leads.Start(c.Request.Context(), req)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, res)
	case errors.Is(err, leads.ErrInvalidLead):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, leads.ErrTooManyActiveLeads):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many active leads"})
	default:
		logger.FromGin(c).Error("start lead failed", "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not place calls"})
	}
}

// GetCall returns the live record for one leg.
func (h *Handlers) GetCall(c *gin.Context) {
	rec, ok := h.Leads.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetSnapshot returns the archived summary for a settled lead.
func (h *Handlers) GetSnapshot(c *gin.Context) {
	snap, err := h.Snapshots.GetSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "lead not found"})
			return
		}
		logger.FromGin(c).Error("load snapshot failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load snapshot"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// OutcomeSummary returns aggregate outcome counts.
func (h *Handlers) OutcomeSummary(c *gin.Context) {
	sum, err := h.Reports.Summarize(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("summarize failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not build summary"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// LeadAuditTrail returns the recorded coordinator decisions for one lead.
func (h *Handlers) LeadAuditTrail(c *gin.Context) {
	trail, err := h.Audit.Trail(c.Request.Context(), c.Param("id"))
	if err != nil {
		logger.FromGin(c).Error("load audit trail failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load audit trail"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"lead_id": c.Param("id"), "events": trail})
}

// ContactTwiML serves the contact leg's initial instructions: connect the
// caller to the conversational agent's media stream.
func (h *Handlers) ContactTwiML(c *gin.Context) {
	twiml, err := telephony.StreamTwiML(telephony.RedirectToStreamRequest{
		StreamURL: h.AgentStreamURL,
	})
	if err != nil {
		c.String(http.StatusInternalServerError, "twiml error")
		return
	}
	c.Data(http.StatusOK, "text/xml", []byte(twiml))
}

// SalesTwiML serves the sales leg's initial instructions: a short greeting,
// then hold until the coordinator updates the call.
func (h *Handlers) SalesTwiML(c *gin.Context) {
	twiml, err := telephony.SayHoldTwiML(
		"You have an incoming care lead. Please stay on the line while we prepare the transfer.", 600)
	if err != nil {
		c.String(http.StatusInternalServerError, "twiml error")
		return
	}
	c.Data(http.StatusOK, "text/xml", []byte(twiml))
}
