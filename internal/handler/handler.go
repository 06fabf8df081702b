package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/nathanyu/mini-ledger/internal/domain"
)

// Response messages
const (
	MsgAccountCreated      = "Account successfully created"
	MsgTransferSuccessful  = "Transfer successful"
	MsgNoBalances          = "No balances found"
	MsgNoTransactions      = "No transactions found"
	MsgInvalidRequestBody  = "Invalid request body"
	MsgInternalServerError = "Internal server error"
	MsgRequestTimedOut     = "Request timed out"
)

// Ledger is the write side used by the handlers
type Ledger interface {
	CreateAccount(ctx context.Context, customerID int64, deposit decimal.Decimal) (*domain.Account, error)
	Transfer(ctx context.Context, req domain.TransferRequest) (*domain.Transaction, error)
}

// Queries is the read side used by the handlers
type Queries interface {
	BalancesAsStrings(ctx context.Context, customerID int64) ([]string, error)
	TransactionDetailsAsStrings(ctx context.Context, customerID int64) ([]string, error)
}

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// Handler contains all HTTP handlers. Every body it writes is a JSON array of strings.
type Handler struct {
	ledger  Ledger
	queries Queries
	checks  map[string]HealthCheck
	logger  *slog.Logger
}

// NewHandler creates a new handler
func NewHandler(ledger Ledger, queries Queries, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ledger:  ledger,
		queries: queries,
		checks:  make(map[string]HealthCheck),
		logger:  logger,
	}
}

// AddHealthCheck registers a dependency probe for GET /health
func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// GetCustomerBalances handles GET /api/getCustomerBalances/:id
func (h *Handler) GetCustomerBalances(c *gin.Context) {
	customerID, ok := parseID(c.Param("id"))
	if !ok {
		respond(c, http.StatusBadRequest, domain.ErrInvalidCustomer.Message)
		return
	}

	balances, err := h.queries.BalancesAsStrings(c.Request.Context(), customerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if len(balances) == 0 {
		respond(c, http.StatusNotFound, MsgNoBalances)
		return
	}

	c.JSON(http.StatusOK, balances)
}

// GetCustomerTransactionDetails handles GET /api/getCustomerTransactionDetails/:id
func (h *Handler) GetCustomerTransactionDetails(c *gin.Context) {
	customerID, ok := parseID(c.Param("id"))
	if !ok {
		respond(c, http.StatusBadRequest, domain.ErrInvalidCustomer.Message)
		return
	}

	details, err := h.queries.TransactionDetailsAsStrings(c.Request.Context(), customerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if len(details) == 0 {
		respond(c, http.StatusNotFound, MsgNoTransactions)
		return
	}

	c.JSON(http.StatusOK, details)
}

// CreateAccountRequest is the request body for account creation
type CreateAccountRequest struct {
	CustomerID     *int64          `json:"customer_id"`
	InitialDeposit json.RawMessage `json:"initialDeposit"`
}

// CreateBankAccount handles POST /api/createBankAccount
func (h *Handler) CreateBankAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, MsgInvalidRequestBody)
		return
	}
	if req.CustomerID == nil {
		respond(c, http.StatusBadRequest, domain.ErrInvalidCustomer.Message)
		return
	}

	deposit, ok := parseMoney(req.InitialDeposit)
	if !ok {
		respond(c, http.StatusBadRequest, domain.ErrInvalidDeposit.Message)
		return
	}

	if _, err := h.ledger.CreateAccount(c.Request.Context(), *req.CustomerID, deposit); err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, MsgAccountCreated)
}

// TransferRequest is the request body for the transfer endpoint
type TransferRequest struct {
	SenderAccountID     int64           `json:"sender_account_id"`
	SendingCustomerID   int64           `json:"sending_customer_id"`
	ReceiverAccountID   int64           `json:"receiver_account_id"`
	ReceivingCustomerID int64           `json:"receiving_customer_id"`
	Amount              json.RawMessage `json:"amount"`
}

// Transfer handles PUT /api/transfer
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, MsgInvalidRequestBody)
		return
	}

	amount, ok := parseMoney(req.Amount)
	if !ok {
		respond(c, http.StatusBadRequest, domain.ErrInvalidAmount.Message)
		return
	}

	_, err := h.ledger.Transfer(c.Request.Context(), domain.TransferRequest{
		SenderAccountID:     req.SenderAccountID,
		SendingCustomerID:   req.SendingCustomerID,
		ReceiverAccountID:   req.ReceiverAccountID,
		ReceivingCustomerID: req.ReceivingCustomerID,
		Amount:              amount,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, MsgTransferSuccessful)
}

// HealthResponse is the response for health check endpoint
type HealthResponse struct {
	Status string            `json:"status"`
	Time   string            `json:"time"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(c.Request.Context()); err != nil {
				h.logger.WarnContext(c.Request.Context(), "health check failed", "check", name, "error", err)
				resp.Checks[name] = "down"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "up"
		}
	}

	c.JSON(status, resp)
}

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *Handler) {
	// Health check
	r.GET("/health", h.Health)

	api := r.Group("/api")
	{
		api.GET("/getCustomerBalances/:id", h.GetCustomerBalances)
		api.GET("/getCustomerTransactionDetails/:id", h.GetCustomerTransactionDetails)
		api.POST("/createBankAccount", h.CreateBankAccount)
		api.PUT("/transfer", h.Transfer)
	}
}

// fail maps service errors to status codes. Validation errors carry their
// message; anything else is logged and reported generically.
func (h *Handler) fail(c *gin.Context, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		respond(c, http.StatusBadRequest, verr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.WarnContext(c.Request.Context(), "request timed out", "path", c.Request.URL.Path, "error", err)
		respond(c, http.StatusGatewayTimeout, MsgRequestTimedOut)
	default:
		h.logger.ErrorContext(c.Request.Context(), "request failed", "path", c.Request.URL.Path, "error", err)
		respond(c, http.StatusInternalServerError, MsgInternalServerError)
	}
}

func respond(c *gin.Context, status int, message string) {
	c.JSON(status, []string{message})
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// parseMoney accepts a JSON number or a numeric string
func parseMoney(raw json.RawMessage) (decimal.Decimal, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Decimal{}, false
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
