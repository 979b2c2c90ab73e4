package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/galatea-associates/locate-fee-engine/internal/apierr"
	"github.com/galatea-associates/locate-fee-engine/internal/domain"
)

// BrokerRepo reads broker_config rows. It is the database tier a cache miss
// falls through to when resolving a client's fee arrangement.
type BrokerRepo struct {
	db *DB
}

// NewBrokerRepo builds a BrokerRepo over an open DB.
func NewBrokerRepo(db *DB) *BrokerRepo {
	return &BrokerRepo{db: db}
}

// Get fetches a broker configuration by client_id. It returns
// apierr.ClientNotFound when no row matches; callers check Active
// themselves so a dedicated ClientInactive error (not a generic not-found)
// can be raised where the client_id is known.
func (r *BrokerRepo) Get(ctx context.Context, clientID string) (domain.BrokerConfig, *apierr.Error) {
	const query = `
		SELECT client_id, markup_percentage, transaction_fee_type, transaction_amount, active
		FROM broker_config
		WHERE client_id = $1
	`

	var cfg domain.BrokerConfig
	var feeType string

	row := r.db.Pool().QueryRow(ctx, query, clientID)
	err := row.Scan(&cfg.ClientID, &cfg.MarkupPercentage, &feeType, &cfg.TransactionAmount, &cfg.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BrokerConfig{}, apierr.ClientNotFound(clientID)
	}
	if err != nil {
		return domain.BrokerConfig{}, apierr.Internal(fmt.Errorf("broker_config lookup: %w", err))
	}

	cfg.TransactionFeeType = domain.FeeType(feeType)
	return cfg, nil
}

// TickerRepo reads ticker reference data (min_borrow_rate, lender_api_id).
type TickerRepo struct {
	db *DB
}

// NewTickerRepo builds a TickerRepo over an open DB.
func NewTickerRepo(db *DB) *TickerRepo {
	return &TickerRepo{db: db}
}

// Get fetches a ticker by symbol. It returns apierr.TickerNotFound when the
// symbol isn't registered.
func (r *TickerRepo) Get(ctx context.Context, symbol string) (domain.Ticker, *apierr.Error) {
	const query = `SELECT symbol, min_borrow_rate, lender_api_id FROM ticker WHERE symbol = $1`

	var t domain.Ticker
	var minRate decimal.Decimal

	row := r.db.Pool().QueryRow(ctx, query, symbol)
	err := row.Scan(&t.Symbol, &minRate, &t.LenderAPIID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Ticker{}, apierr.TickerNotFound(symbol)
	}
	if err != nil {
		return domain.Ticker{}, apierr.Internal(fmt.Errorf("ticker lookup: %w", err))
	}

	t.MinBorrowRate = minRate
	return t, nil
}
