package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fintrack/internal/core"
)

type createEntryRequest struct {
	Description string          `json:"description"`
	Amount      core.Money      `json:"amount"`
	Kind        core.Kind       `json:"kind"`
	CategoryID  string          `json:"category_id"`
	Scope       core.Scope      `json:"scope"`
	Date        core.Date       `json:"date"`
	IsSplit     bool            `json:"is_split"`
	Reference   *core.Reference `json:"reference,omitempty"`
	Splits      []core.Split    `json:"splits"`
	Tags        []string        `json:"tags"`
}

func (s *Server) handleCreateEntry(c *gin.Context) {
	var req createEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}

	entry := core.LedgerEntry{
		AccountID:   accountID(c),
		Description: sanitizeInput(req.Description),
		Amount:      req.Amount,
		Kind:        req.Kind,
		CategoryID:  sanitizeInput(req.CategoryID),
		Scope:       req.Scope,
		Date:        req.Date,
		IsSplit:     req.IsSplit,
		Reference:   req.Reference,
	}
	created, err := s.svc.Ledger.Create(c.Request.Context(), entry, req.Splits, req.Tags)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleListEntries(c *gin.Context) {
	f, err := parseEntryFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}
	entries, err := s.svc.Ledger.List(c.Request.Context(), accountID(c), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// ownedEntry loads an entry and hides it when it belongs to another account.
func (s *Server) ownedEntry(c *gin.Context) (core.LedgerEntry, bool) {
	id := c.Param("id")
	entry, err := s.svc.Ledger.Get(c.Request.Context(), id)
	if err == nil && entry.AccountID != accountID(c) {
		err = &core.NotFoundError{Entity: "ledger entry", ID: id}
	}
	if err != nil {
		writeError(c, err)
		return core.LedgerEntry{}, false
	}
	return entry, true
}

func (s *Server) handleGetEntry(c *gin.Context) {
	if entry, ok := s.ownedEntry(c); ok {
		c.JSON(http.StatusOK, entry)
	}
}

func (s *Server) handleUpdateEntry(c *gin.Context) {
	var u core.EntryUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	entry, ok := s.ownedEntry(c)
	if !ok {
		return
	}
	updated, err := s.svc.Ledger.Update(c.Request.Context(), entry.ID, u)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// handleDeleteEntry answers 204 for absent ids as well.
func (s *Server) handleDeleteEntry(c *gin.Context) {
	id := c.Param("id")
	entry, err := s.svc.Ledger.Get(c.Request.Context(), id)
	switch {
	case core.IsNotFound(err):
		c.Status(http.StatusNoContent)
		return
	case err != nil:
		writeError(c, err)
		return
	case entry.AccountID != accountID(c):
		writeError(c, &core.NotFoundError{Entity: "ledger entry", ID: id})
		return
	}
	if err := s.svc.Ledger.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAccountBalance(c *gin.Context) {
	balance, err := s.svc.Projector.AccountBalance(c.Request.Context(), accountID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}
