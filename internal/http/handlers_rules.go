package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fintrack/internal/core"
)

type createRuleRequest struct {
	Description string         `json:"description"`
	Amount      core.Money     `json:"amount"`
	Kind        core.Kind      `json:"kind"`
	CategoryID  string         `json:"category_id"`
	Scope       core.Scope     `json:"scope"`
	Frequency   core.Frequency `json:"frequency"`
	StartDate   core.Date      `json:"start_date"`
	EndDate     core.Date      `json:"end_date"`
}

func (s *Server) handleCreateRule(c *gin.Context) {
	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	rule, err := s.svc.Recurrence.CreateRule(c.Request.Context(), core.RecurrenceRule{
		AccountID:   accountID(c),
		Description: sanitizeInput(req.Description),
		Amount:      req.Amount,
		Kind:        req.Kind,
		CategoryID:  sanitizeInput(req.CategoryID),
		Scope:       req.Scope,
		Frequency:   req.Frequency,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (s *Server) handleListRules(c *gin.Context) {
	rules, err := s.svc.Recurrence.ListRules(c.Request.Context(), accountID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules, "count": len(rules)})
}

func (s *Server) ownedRule(c *gin.Context) (core.RecurrenceRule, bool) {
	id := c.Param("id")
	rule, err := s.svc.Recurrence.GetRule(c.Request.Context(), id)
	if err == nil && rule.AccountID != accountID(c) {
		err = &core.NotFoundError{Entity: "recurrence rule", ID: id}
	}
	if err != nil {
		writeError(c, err)
		return core.RecurrenceRule{}, false
	}
	return rule, true
}

func (s *Server) handleGetRule(c *gin.Context) {
	if rule, ok := s.ownedRule(c); ok {
		c.JSON(http.StatusOK, rule)
	}
}

func (s *Server) handleUpdateRule(c *gin.Context) {
	var u core.RuleUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	rule, ok := s.ownedRule(c)
	if !ok {
		return
	}
	updated, err := s.svc.Recurrence.UpdateRule(c.Request.Context(), rule.ID, u)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteRule(c *gin.Context) {
	id := c.Param("id")
	rule, err := s.svc.Recurrence.GetRule(c.Request.Context(), id)
	switch {
	case core.IsNotFound(err):
		c.Status(http.StatusNoContent)
		return
	case err != nil:
		writeError(c, err)
		return
	case rule.AccountID != accountID(c):
		writeError(c, &core.NotFoundError{Entity: "recurrence rule", ID: id})
		return
	}
	if err := s.svc.Recurrence.DeleteRule(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDueSoon(c *gin.Context) {
	due, err := s.svc.Projector.DueSoon(c.Request.Context(), accountID(c), s.today())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": due, "count": len(due)})
}

func (s *Server) today() core.Date {
	return core.DateOf(s.svc.Now())
}
