package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/galatea-associates/locate-fee-engine/internal/apierr"
	"github.com/galatea-associates/locate-fee-engine/internal/domain"
)

const correlationIDKey = "correlation_id"

// calculateLocateRequest is the wire shape of POST /calculate-locate's body.
type calculateLocateRequest struct {
	Ticker        string          `json:"ticker" binding:"required"`
	PositionValue decimal.Decimal `json:"position_value"`
	LoanDays      int             `json:"loan_days"`
	ClientID      string          `json:"client_id" binding:"required"`
}

type feeBreakdownResponse struct {
	BorrowCost      decimal.Decimal `json:"borrow_cost"`
	Markup          decimal.Decimal `json:"markup"`
	TransactionFees decimal.Decimal `json:"transaction_fees"`
}

type calculateLocateResponse struct {
	Status         string               `json:"status"`
	TotalFee       decimal.Decimal      `json:"total_fee"`
	Breakdown      feeBreakdownResponse `json:"breakdown"`
	BorrowRateUsed decimal.Decimal      `json:"borrow_rate_used"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type errorResponse struct {
	Status string      `json:"status"`
	Error  errorDetail `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type dataSourceResponse struct {
	SourceName string `json:"source_name"`
	SourceType string `json:"source_type"`
	IsFallback bool   `json:"is_fallback"`
}

type rateResponse struct {
	Ticker           string             `json:"ticker"`
	BorrowRate       decimal.Decimal    `json:"borrow_rate"`
	VolatilityIndex  *decimal.Decimal   `json:"volatility_index,omitempty"`
	EventRiskFactor  *int               `json:"event_risk_factor,omitempty"`
	BorrowRateSource dataSourceResponse `json:"borrow_rate_source"`
}

// correlationID returns the caller-supplied X-Correlation-ID, or mints one
// per §6's "generated with google/uuid if absent" rule.
func correlationID(c *gin.Context) string {
	id := c.GetHeader("X-Correlation-ID")
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(correlationIDKey, id)
	return id
}

// handleHealth reports §6's {status:"healthy"} shape, grounded on the
// teacher's handleHealth — a short-deadline database ping gates the
// response so an unreachable database surfaces as 503 rather than a
// false-positive 200.
func (s *Server) handleHealth(c *gin.Context) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unhealthy"})
			return
		}
	}
	c.JSON(http.StatusOK, healthResponse{Status: "healthy"})
}

func (s *Server) handleCalculateLocate(c *gin.Context) {
	cid := correlationID(c)

	var body calculateLocateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeAPIError(c, apierr.Validation("body", "request body is malformed or missing required fields").WithCorrelationID(cid))
		return
	}

	req := domain.CalculationRequest{
		Ticker:        body.Ticker,
		PositionValue: body.PositionValue,
		LoanDays:      body.LoanDays,
		ClientID:      body.ClientID,
		CorrelationID: cid,
	}

	result, err := s.pricing.Calculate(c.Request.Context(), req)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, calculateLocateResponse{
		Status:   "success",
		TotalFee: result.TotalFee,
		Breakdown: feeBreakdownResponse{
			BorrowCost:      result.Breakdown.BorrowCost,
			Markup:          result.Breakdown.Markup,
			TransactionFees: result.Breakdown.TransactionFees,
		},
		BorrowRateUsed: result.BorrowRateUsed,
	})
}

func (s *Server) handleGetRate(c *gin.Context) {
	cid := correlationID(c)
	ticker := c.Param("ticker")

	rc, err := s.pricing.LookupRate(c.Request.Context(), ticker, cid)
	if err != nil {
		writeAPIError(c, err.WithCorrelationID(cid))
		return
	}

	c.JSON(http.StatusOK, rateResponse{
		Ticker:          ticker,
		BorrowRate:      rc.BaseRate,
		VolatilityIndex: rc.VolatilityIndex,
		EventRiskFactor: rc.EventRiskFactor,
		BorrowRateSource: dataSourceResponse{
			SourceName: rc.BaseRateSource.SourceName,
			SourceType: string(rc.BaseRateSource.SourceType),
			IsFallback: rc.BaseRateSource.IsFallback,
		},
	})
}

// writeAPIError maps a *apierr.Error onto its documented HTTP status and the
// {status:"error", error:{code, message}} envelope from SPEC_FULL §6. An
// AuditPersistenceError never reaches here — the coordinator only logs it.
func writeAPIError(c *gin.Context, err *apierr.Error) {
	writeError(c, err.HTTPStatus(), err.Code, err.Message, err.Field)
}

func writeError(c *gin.Context, status int, code, message, details string) {
	c.JSON(status, errorResponse{
		Status: "error",
		Error: errorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}
