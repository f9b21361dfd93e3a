package ledger

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Handler exposes the ledger over HTTP.
type Handler struct {
	engine              *Engine
	allowFaultInjection bool
}

// NewHandler builds a ledger HTTP handler. When allowFaultInjection is false
// the shouldFail request flag is ignored.
func NewHandler(engine *Engine, allowFaultInjection bool) *Handler {
	return &Handler{engine: engine, allowFaultInjection: allowFaultInjection}
}

type envelope struct {
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

type createAccountRequest struct {
	ID             string           `json:"id"`
	InitialBalance *decimal.Decimal `json:"initialBalance"`
}

type createTransferRequest struct {
	FromAccountID string          `json:"fromAccountId"`
	ToAccountID   string          `json:"toAccountId"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	ShouldFail    bool            `json:"shouldFail"`
}

// CreateAccount opens an account.
func (h *Handler) CreateAccount(c *fiber.Ctx) error {
	var req createAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return decodeError(err)
	}
	account, err := h.engine.CreateAccount(c.UserContext(), CreateAccountInput{ID: req.ID, InitialBalance: req.InitialBalance})
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(envelope{Data: account, Message: "Account created successfully"})
}

// GetAccount returns one account.
func (h *Handler) GetAccount(c *fiber.Ctx) error {
	account, err := h.engine.GetAccount(c.UserContext(), c.Params("accountId"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(envelope{Data: account})
}

// ListAccounts returns every account.
func (h *Handler) ListAccounts(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(envelope{Data: h.engine.GetAccounts(c.UserContext())})
}

// AccountTransfers returns the transfer history of one account.
func (h *Handler) AccountTransfers(c *fiber.Ctx) error {
	transfers, err := h.engine.AccountTransfers(c.UserContext(), c.Params("accountId"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(envelope{Data: transfers})
}

// CreateTransfer moves funds between two accounts.
func (h *Handler) CreateTransfer(c *fiber.Ctx) error {
	var req createTransferRequest
	if err := c.BodyParser(&req); err != nil {
		return decodeError(err)
	}
	transfer, err := h.engine.CreateTransfer(c.UserContext(), TransferInput{
		FromAccountID:     req.FromAccountID,
		ToAccountID:       req.ToAccountID,
		Amount:            req.Amount,
		Description:       req.Description,
		FailAfterMutation: req.ShouldFail && h.allowFaultInjection,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(envelope{Data: transfer, Message: "Transfer completed successfully"})
}

// GetTransfer returns one transfer record.
func (h *Handler) GetTransfer(c *fiber.Ctx) error {
	transfer, err := h.engine.GetTransfer(c.UserContext(), c.Params("transferId"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(envelope{Data: transfer})
}

// ListTransfers returns every transfer record.
func (h *Handler) ListTransfers(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(envelope{Data: h.engine.ListTransfers(c.UserContext())})
}

// Audit returns the audit trail, optionally narrowed to one transfer.
func (h *Handler) Audit(c *fiber.Ctx) error {
	if transferID := c.Query("transferId"); transferID != "" {
		return c.Status(http.StatusOK).JSON(envelope{Data: h.engine.TransferAudit(transferID)})
	}
	return c.Status(http.StatusOK).JSON(envelope{Data: h.engine.AuditTrail()})
}

func decodeError(err error) error {
	return fiber.NewError(http.StatusBadRequest, ErrValidation.Error()+": malformed request body: "+err.Error())
}

// StatusCode maps a ledger error to the HTTP status the API reports for it.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func toHTTPError(err error) error {
	return fiber.NewError(StatusCode(err), err.Error())
}
