package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ozerovd/linemart/internal/catalog"
	"github.com/ozerovd/linemart/internal/money"
	"github.com/ozerovd/linemart/internal/pagination"
	"github.com/ozerovd/linemart/internal/registry"
	"github.com/ozerovd/linemart/internal/validation"
)

func (s *Server) healthHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	resp := gin.H{"status": "ok"}
	if s.deps.DB != nil {
		if err := s.deps.DB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "db": err.Error()})
			return
		}
		resp["db"] = "ok"
	}
	if s.deps.Health != nil {
		healthy, statuses := s.deps.Health.CheckAll(c.Request.Context())
		resp["subsystems"] = statuses
		if !healthy {
			resp["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) livenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// runAuditHandler triggers the resolved-vs-credited audit on demand.
func (s *Server) runAuditHandler(c *gin.Context) {
	limit := 500
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	s.deps.Engine.Audit(c.Request.Context(), limit)
	c.JSON(http.StatusOK, gin.H{"status": "audit_complete", "limit": limit})
}

func (s *Server) pendingOperationsHandler(c *gin.Context) {
	ops, err := s.deps.Registry.ListPending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops, "count": len(ops)})
}

func (s *Server) resolvedOperationsHandler(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	var before time.Time
	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_cursor"})
		return
	}
	if cursor != nil {
		before = cursor.ResolvedAt
	}

	// Fetch one extra row to detect whether another page exists.
	ops, err := s.deps.Registry.ListResolvedBefore(c.Request.Context(), before, limit+1)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	page, next, hasMore := pagination.Page(ops, limit, func(op *registry.Operation) (time.Time, string) {
		return op.ResolvedAt, op.InvoiceID
	})
	c.JSON(http.StatusOK, gin.H{
		"operations":  page,
		"count":       len(page),
		"next_cursor": next,
		"has_more":    hasMore,
	})
}

func (s *Server) userBalanceHandler(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_user_id"})
		return
	}
	balance, err := s.deps.Ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "balance_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":  userID,
		"balance": balance,
		"display": money.Format(balance),
	})
}

func (s *Server) putItemHandler(c *gin.Context) {
	var item catalog.Item
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_item", "message": err.Error()})
		return
	}
	if errs := validation.Validate(
		validation.Required("name", item.Name),
		validation.Required("category", item.Category),
		validation.MaxLength("description", item.Description, validation.MaxStringLength),
		validation.PositiveCents("price", item.Price),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_item", "message": errs.Error(), "fields": errs})
		return
	}
	item.Description = validation.SanitizeString(item.Description, validation.MaxStringLength)
	if err := s.deps.Catalog.Put(c.Request.Context(), &item); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "put_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stored", "item": item.Name})
}

type provisionRequest struct {
	Units []string `json:"units"`
}

func (s *Server) provisionHandler(c *gin.Context) {
	var req provisionRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Units) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_units"})
		return
	}
	item := c.Param("item")
	if err := s.deps.Pool.Provision(item, req.Units); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provision_failed", "message": err.Error()})
		return
	}
	count, _ := s.deps.Pool.Count(item)
	c.JSON(http.StatusOK, gin.H{"item": item, "stock": count})
}

func (s *Server) stockHandler(c *gin.Context) {
	item := c.Param("item")
	count, err := s.deps.Pool.Count(item)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item, "stock": count})
}
