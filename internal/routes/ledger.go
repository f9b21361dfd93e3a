package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/ledgercore/internal/ledger"
)

// RegisterLedgerRoutes wires account, transfer and audit endpoints. The
// /transactions group mirrors /transfers for older clients.
func RegisterLedgerRoutes(r fiber.Router, h *ledger.Handler) {
	accounts := r.Group("/accounts")
	accounts.Post("/", h.CreateAccount)
	accounts.Get("/", h.ListAccounts)
	accounts.Get("/:accountId", h.GetAccount)
	accounts.Get("/:accountId/transfers", h.AccountTransfers)

	for _, prefix := range []string{"/transfers", "/transactions"} {
		transfers := r.Group(prefix)
		transfers.Post("/", h.CreateTransfer)
		transfers.Get("/", h.ListTransfers)
		transfers.Get("/:transferId", h.GetTransfer)
	}

	r.Get("/audit", h.Audit)
}
