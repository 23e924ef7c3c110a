package payments

import "context"

// Audit cross-checks recently resolved operations against the ledger and
// reports invoices that won the resolve transition but never produced a
// topup credit. This covers the crash window between registry.Resolve and
// ledger.Credit.
//
// Called once at startup. The audit only reports; crediting after the fact
// is an operator decision, not an automatic one.
func (e *Engine) Audit(ctx context.Context, limit int) {
	resolved, err := e.registry.ListResolved(ctx, limit)
	if err != nil {
		e.logger.Error("audit: failed to list resolved invoices", "error", err)
		return
	}

	uncredited := 0
	for _, op := range resolved {
		credited, err := e.ledger.WasCredited(ctx, op.InvoiceID)
		if err != nil {
			e.logger.Error("audit: ledger lookup failed", "invoice_id", op.InvoiceID, "error", err)
			continue
		}
		if credited {
			continue
		}
		uncredited++
		e.logger.Warn("audit: resolved invoice has no ledger credit",
			"invoice_id", op.InvoiceID, "user_id", op.UserID, "amount", op.Amount,
			"resolved_at", op.ResolvedAt)
	}

	auditUncredited.Set(float64(uncredited))
	if uncredited == 0 {
		e.logger.Info("audit: all resolved invoices credited", "checked", len(resolved))
	} else {
		e.logger.Warn("audit: uncredited invoices found",
			"checked", len(resolved), "uncredited", uncredited)
	}
}

// LogStartupState summarizes pending work after a restart. The sweep picks
// these invoices up on its first tick.
func (e *Engine) LogStartupState(ctx context.Context) {
	pending, err := e.registry.ListPending(ctx)
	if err != nil {
		e.logger.Error("startup: failed to list pending invoices", "error", err)
		return
	}
	if len(pending) > 0 {
		e.logger.Info("startup: pending invoices will be swept", "count", len(pending))
	}
}
