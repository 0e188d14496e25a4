package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/shelfmarket/purchase-settlement-go/settlement"
	"github.com/shelfmarket/purchase-settlement-go/settlement/postgresengine/internal/adapters"
)

// Column names for the purchases table, in scan order.
const (
	colID                = "id"
	colBookID            = "book_id"
	colBuyerID           = "buyer_id"
	colSellerID          = "seller_id"
	colAmountCents       = "amount_cents"
	colPlatformFeeCents  = "platform_fee_cents"
	colSellerAmountCents = "seller_amount_cents"
	colStatus            = "status"
	colCheckoutSessionID = "checkout_session_id"
	colPaymentIntentID   = "payment_intent_id"
	colShippingName      = "shipping_name"
	colShippingLine1     = "shipping_address_line1"
	colShippingLine2     = "shipping_address_line2"
	colShippingCity      = "shipping_city"
	colShippingState     = "shipping_state"
	colShippingPostal    = "shipping_postal_code"
	colShippingCountry   = "shipping_country"
	colCancelledAt       = "cancelled_at"
	colCreatedAt         = "created_at"
	colUpdatedAt         = "updated_at"
)

// Column names for the books table.
const (
	colBookSellerID = "seller_id"
	colBookTitle    = "title"
	colBookAuthor   = "author"
	colBookPrice    = "price"
	colBookSold     = "sold"
)

// purchaseColumns is the canonical select list; scanPurchase relies on this order.
func purchaseColumns() []any {
	return []any{
		colID, colBookID, colBuyerID, colSellerID,
		colAmountCents, colPlatformFeeCents, colSellerAmountCents,
		colStatus, colCheckoutSessionID, colPaymentIntentID,
		colShippingName, colShippingLine1, colShippingLine2,
		colShippingCity, colShippingState, colShippingPostal, colShippingCountry,
		colCancelledAt, colCreatedAt, colUpdatedAt,
	}
}

// purchaseRecord builds the goqu record for inserting or updating a purchase row.
func purchaseRecord(p settlement.Purchase) goqu.Record {
	record := goqu.Record{
		colID:                p.ID.String(),
		colBookID:            p.BookID.String(),
		colBuyerID:           p.BuyerID.String(),
		colSellerID:          p.SellerID.String(),
		colAmountCents:       p.AmountCents,
		colPlatformFeeCents:  p.PlatformFeeCents,
		colSellerAmountCents: p.SellerAmountCents,
		colStatus:            string(p.Status),
		colCheckoutSessionID: p.CheckoutSessionID,
		colPaymentIntentID:   p.PaymentIntentID,
		colShippingName:      p.Shipping.Name,
		colShippingLine1:     p.Shipping.Line1,
		colShippingLine2:     p.Shipping.Line2,
		colShippingCity:      p.Shipping.City,
		colShippingState:     p.Shipping.State,
		colShippingPostal:    p.Shipping.PostalCode,
		colShippingCountry:   p.Shipping.Country,
		colCreatedAt:         p.CreatedAt,
		colUpdatedAt:         p.UpdatedAt,
	}

	if p.CancelledAt.IsZero() {
		record[colCancelledAt] = nil
	} else {
		record[colCancelledAt] = p.CancelledAt
	}

	return record
}

// scanPurchase scans the current row into a settlement.Purchase.
// The destinations must match purchaseColumns order exactly.
func scanPurchase(rows adapters.DBRows) (settlement.Purchase, error) {
	var purchase settlement.Purchase
	var id, bookID, buyerID, sellerID uuid.UUID
	var status string
	var cancelledAt sql.NullTime

	scanErr := rows.Scan(
		&id, &bookID, &buyerID, &sellerID,
		&purchase.AmountCents, &purchase.PlatformFeeCents, &purchase.SellerAmountCents,
		&status, &purchase.CheckoutSessionID, &purchase.PaymentIntentID,
		&purchase.Shipping.Name, &purchase.Shipping.Line1, &purchase.Shipping.Line2,
		&purchase.Shipping.City, &purchase.Shipping.State, &purchase.Shipping.PostalCode, &purchase.Shipping.Country,
		&cancelledAt, &purchase.CreatedAt, &purchase.UpdatedAt,
	)
	if scanErr != nil {
		return settlement.Purchase{}, scanErr
	}

	purchase.ID = id
	purchase.BookID = bookID
	purchase.BuyerID = buyerID
	purchase.SellerID = sellerID
	purchase.Status = settlement.Status(status)

	if cancelledAt.Valid {
		purchase.CancelledAt = cancelledAt.Time
	}

	return purchase, nil
}

// scanBook scans the current row into a settlement.Book.
// Destinations match: id, seller_id, title, author, price, sold.
func scanBook(rows adapters.DBRows) (settlement.Book, error) {
	var book settlement.Book
	var id, sellerID uuid.UUID
	var price decimal.Decimal

	scanErr := rows.Scan(&id, &sellerID, &book.Title, &book.Author, &price, &book.Sold)
	if scanErr != nil {
		return settlement.Book{}, scanErr
	}

	book.ID = id
	book.SellerID = sellerID
	book.Price = price

	return book, nil
}

// closeRows safely closes database rows and logs any errors.
func (s PurchaseStore) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		s.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

// rollbackTx rolls a transaction back and logs failures; safe to call after commit,
// where the rollback error is ignored by the drivers or logged at warn level only.
func (s PurchaseStore) rollbackTx(ctx context.Context, tx adapters.DBTx) {
	if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
		if errors.Is(rollbackErr, sql.ErrTxDone) || errors.Is(rollbackErr, pgx.ErrTxClosed) {
			return
		}

		s.logWarn(ctx, logMsgRollbackTxFailed, logAttrError, rollbackErr.Error())
	}
}

// isUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation, for any of the supported drivers.
func isUniqueViolation(err error) bool {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == uniqueViolationSQLStateCode
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationSQLStateCode
	}

	return false
}

// queryRunner is the subset of adapter operations shared by connections and transactions.
type queryRunner interface {
	Query(ctx context.Context, query string) (adapters.DBRows, error)
	Exec(ctx context.Context, query string) (adapters.DBResult, error)
}

// executeQuery runs a select and returns rows with timing logged at debug level.
func (s PurchaseStore) executeQuery(ctx context.Context, runner queryRunner, sqlQuery string) (adapters.DBRows, error) {
	start := time.Now()
	rows, queryErr := runner.Query(ctx, sqlQuery)
	s.logQueryWithDuration(ctx, sqlQuery, logActionSelect, time.Since(start))

	if queryErr != nil {
		s.logError(ctx, logMsgDBQueryFailed, logAttrError, queryErr.Error(), logAttrQuery, sqlQuery)
		return nil, queryErr
	}

	return rows, nil
}

// executeStatement runs a mutating statement and returns the affected row count
// with timing logged at debug level.
func (s PurchaseStore) executeStatement(ctx context.Context, runner queryRunner, sqlQuery string, action string) (int64, error) {
	start := time.Now()
	result, execErr := runner.Exec(ctx, sqlQuery)
	s.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if execErr != nil {
		if !isUniqueViolation(execErr) {
			s.logError(ctx, logMsgDBExecFailed, logAttrError, execErr.Error(), logAttrQuery, sqlQuery)
		}

		return 0, execErr
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		s.logError(ctx, logMsgRowsAffectedFailed, logAttrError, rowsAffectedErr.Error())
		return 0, rowsAffectedErr
	}

	return rowsAffected, nil
}
