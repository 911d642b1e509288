package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	hybridcfg "github.com/qualiteair/hybride/services/internal/config"
)

type filterQuery struct {
	Zone       string `form:"zone" binding:"omitempty,max=5"`
	DateFrom   string `form:"date_from" binding:"omitempty,datetime=2006-01-02"`
	DateTo     string `form:"date_to" binding:"omitempty,datetime=2006-01-02"`
	Pollutants string `form:"pollutants"`
}

// filters overlays the zone, date_from, date_to and pollutants query
// parameters onto the default filters.
func (s *Server) filters(c *gin.Context) (hybridcfg.Filters, bool) {
	var q filterQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return hybridcfg.Filters{}, false
	}

	cfg := hybridcfg.Config{Filters: s.defaults}
	if _, ok := c.GetQuery("zone"); ok {
		cfg.Filters.Zone = strings.TrimSpace(q.Zone)
	}
	if err := hybridcfg.SetDateRange(&cfg, q.DateFrom, q.DateTo); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return cfg.Filters, false
	}
	if f, t := cfg.Filters.DateFrom, cfg.Filters.DateTo; f != nil && t != nil && f.After(*t) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date_from is after date_to"})
		return cfg.Filters, false
	}
	if _, ok := c.GetQuery("pollutants"); ok {
		hybridcfg.SetPollutants(&cfg, q.Pollutants)
	}
	return cfg.Filters, true
}

// handleV1Report builds a full report without writing it to disk
// GET /api/v1/hybrid/report
func (s *Server) handleV1Report(c *gin.Context) {
	f, ok := s.filters(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	report, err := s.newRec(f).Build(ctx)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": report,
		"meta": gin.H{
			"run_id":          report.RunID,
			"correspondences": len(report.Correspondences),
		},
	})
}

// handleV1Sample returns the first relational record and the first episode
// GET /api/v1/hybrid/sample
func (s *Server) handleV1Sample(c *gin.Context) {
	f, ok := s.filters(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	sample, err := s.newRec(f).Sample(ctx)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sample})
}

// handleV1Codes returns the identifying codes of the first record per source
// GET /api/v1/hybrid/codes
func (s *Server) handleV1Codes(c *gin.Context) {
	f, ok := s.filters(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	codes, err := s.newRec(f).Codes(ctx)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": codes})
}
