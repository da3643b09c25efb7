package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

// handleAggregate folds a period's settled obligations into the ledger.
// {"auto":true} targets the month before today.
func (s *Server) handleAggregate(c *gin.Context) {
	var req periodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}

	var (
		result services.AggregationResult
		err    error
	)
	if req.Auto {
		result, err = s.svc.Aggregation.AutoAggregate(c.Request.Context(), s.svc.Now())
	} else {
		result, err = s.svc.Aggregation.Aggregate(c.Request.Context(), core.NewPeriod(req.Month, req.Year))
	}
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == services.OutcomeAggregated {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

func (s *Server) handleAggregationHistory(c *gin.Context) {
	receipts, err := s.svc.Aggregation.History(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts, "count": len(receipts)})
}
