// Package domain holds the explicit structs the locate-fee pipeline operates
// over. Nothing here is a map[string]interface{} or other dynamic dictionary;
// every field that may be legitimately absent (volatility, event risk) is a
// typed pointer, not an implicit zero value.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ticker is an immutable (from the core's perspective) security reference.
type Ticker struct {
	Symbol       string
	MinBorrowRate decimal.Decimal
	LenderAPIID  string
}

// FeeType is a closed tagged variant over the two ways a transaction fee can
// be computed. It is never a string compared ad hoc; Validate rejects anything
// outside the two known variants.
type FeeType string

const (
	FeeTypeFlat       FeeType = "FLAT"
	FeeTypePercentage FeeType = "PERCENTAGE"
)

// Valid reports whether t is one of the known fee type variants.
func (t FeeType) Valid() bool {
	return t == FeeTypeFlat || t == FeeTypePercentage
}

// BrokerConfig describes one client's fee arrangement.
type BrokerConfig struct {
	ClientID           string
	MarkupPercentage   decimal.Decimal
	TransactionFeeType FeeType
	TransactionAmount  decimal.Decimal
	Active             bool
}

// CalculationRequest is the validated input to one locate-fee calculation.
type CalculationRequest struct {
	Ticker        string
	PositionValue decimal.Decimal
	LoanDays      int
	ClientID      string
	CorrelationID string
}

// SourceType classifies where a resolved value ultimately came from.
type SourceType string

const (
	SourceTypeAPI      SourceType = "api"
	SourceTypeCache    SourceType = "cache"
	SourceTypeDatabase SourceType = "database"
	SourceTypeFallback SourceType = "fallback"
)

// DataSource is the provenance tag attached to every externally resolved
// value. Metadata is a closed, flat string-keyed bag by convention (endpoint,
// status_code, response_time_ms, cache_hit, ttl, reason) — never a nested or
// arbitrarily-typed structure, so it serializes identically every time.
type DataSource struct {
	SourceName string            `json:"source_name"`
	SourceType SourceType        `json:"source_type"`
	IsFallback bool              `json:"is_fallback"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// RateContext is the set of externally resolved values for one calculation.
// VolatilityIndex and EventRiskFactor are pointers because the spec requires
// their absence to be recorded, not synthesized as zero.
type RateContext struct {
	BaseRate          decimal.Decimal
	BaseRateSource    DataSource
	VolatilityIndex   *decimal.Decimal
	VolatilitySource  DataSource
	EventRiskFactor   *int
	EventRiskSource   DataSource
}

// FeeBreakdown is the decomposition of the total fee. The invariant
// BorrowCost + Markup + TransactionFees == total is enforced by the engine,
// never by a consumer re-deriving it.
type FeeBreakdown struct {
	BorrowCost      decimal.Decimal
	Markup          decimal.Decimal
	TransactionFees decimal.Decimal
}

// Total returns the sum of the three breakdown components.
func (b FeeBreakdown) Total() decimal.Decimal {
	return b.BorrowCost.Add(b.Markup).Add(b.TransactionFees)
}

// CalculationResult is the full output of the engine, including every
// intermediate value needed to reproduce the calculation in an audit record.
type CalculationResult struct {
	TotalFee              decimal.Decimal
	Breakdown             FeeBreakdown
	BorrowRateUsed        decimal.Decimal
	BaseBorrowRate        decimal.Decimal
	VolatilityAdjustment  *decimal.Decimal
	EventRiskAdjustment   *decimal.Decimal
	AnnualizedRate        decimal.Decimal
	TimeFactor            decimal.Decimal
}

// AuditState is the unidirectional lifecycle of one audit entry.
type AuditState string

const (
	AuditStateNew       AuditState = "NEW"
	AuditStateBuffered  AuditState = "BUFFERED"
	AuditStatePersisted AuditState = "PERSISTED"
	AuditStateFailed    AuditState = "FAILED"
)

// AuditRecord is the immutable record written once per successful
// calculation. It is never mutated after construction.
type AuditRecord struct {
	AuditID       uuid.UUID
	Timestamp     time.Time
	Ticker        string
	PositionValue decimal.Decimal
	LoanDays      int
	ClientID      string
	Result        CalculationResult
	DataSources   []DataSource
	CorrelationID string
	RequestID     string
	UserAgent     string
	IP            string
}

// HasFallback reports whether any DataSource in the record was a fallback
// substitution — used by compliance queries filtering on is_fallback.
func (r AuditRecord) HasFallback() bool {
	for _, ds := range r.DataSources {
		if ds.IsFallback {
			return true
		}
	}
	return false
}
