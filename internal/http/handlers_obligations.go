package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

type paymentRequest struct {
	DebtorID string     `json:"debtor_id"`
	Month    int        `json:"month"`
	Year     int        `json:"year"`
	Amount   core.Money `json:"amount"`
	Method   string     `json:"method"`
	Note     string     `json:"note"`
}

func (s *Server) handleRecordPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	o, err := s.svc.Obligations.RecordPayment(c.Request.Context(), services.PaymentRequest{
		DebtorID: sanitizeInput(req.DebtorID),
		Period:   core.NewPeriod(req.Month, req.Year),
		Amount:   req.Amount,
		Method:   sanitizeInput(req.Method),
		Note:     sanitizeInput(req.Note),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"obligation":       o,
		"remaining":        o.Remaining(),
		"effective_status": o.StatusAt(s.today()),
	})
}

type periodRequest struct {
	Month int  `json:"month"`
	Year  int  `json:"year"`
	Auto  bool `json:"auto"`
}

func (s *Server) handleGenerateObligations(c *gin.Context) {
	var req periodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	period := core.NewPeriod(req.Month, req.Year)
	if req.Auto {
		period = core.PeriodOf(s.svc.Now())
	}
	result, err := s.svc.Obligations.GeneratePeriodObligations(c.Request.Context(), period)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListObligations(c *gin.Context) {
	var f core.ObligationFilter
	period, ok, err := parsePeriodQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if ok {
		f.Period = &period
	}
	f.DebtorID = sanitizeInput(c.Query("debtor_id"))
	if raw := c.Query("status"); raw != "" {
		f.Status = core.ObligationStatus(raw)
		switch f.Status {
		case core.StatusPending, core.StatusPartial, core.StatusPaid, core.StatusOverdue:
		default:
			badRequest(c, "status", "unknown status "+raw)
			return
		}
	}

	list, err := s.svc.Obligations.ListObligations(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"obligations": list, "count": len(list)})
}

func (s *Server) handleMonthlySummary(c *gin.Context) {
	period, ok, err := parsePeriodQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		period = core.PeriodOf(s.svc.Now())
	}
	summary, err := s.svc.Projector.MonthlySummary(c.Request.Context(), period, s.today())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleDebtorBalance(c *gin.Context) {
	balance, err := s.svc.Projector.DebtorBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}
