package postgresengine

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/shelfmarket/purchase-settlement-go/settlement"
)

// FindByID returns the purchase with the given id,
// or settlement.ErrPurchaseNotFound when no row matches.
func (s PurchaseStore) FindByID(ctx context.Context, purchaseID uuid.UUID) (settlement.Purchase, error) {
	return s.loadPurchase(ctx, s.db, goqu.Ex{colID: purchaseID.String()}, false)
}

// FindByCheckoutSessionID returns the purchase holding the given provider
// checkout-session id, or settlement.ErrPurchaseNotFound when no row matches.
// This is the lookup key for checkout completed/expired notifications.
// An empty id is always a miss: freshly created pending purchases carry an
// empty session id until the provider session is bound.
func (s PurchaseStore) FindByCheckoutSessionID(ctx context.Context, sessionID string) (settlement.Purchase, error) {
	if sessionID == "" {
		return settlement.Purchase{}, settlement.ErrPurchaseNotFound
	}

	return s.loadPurchase(ctx, s.db, goqu.Ex{colCheckoutSessionID: sessionID}, false)
}

// FindByPaymentIntentID returns the purchase holding the given provider
// payment-intent id, or settlement.ErrPurchaseNotFound when no row matches.
// This is the lookup key for payment failed notifications.
func (s PurchaseStore) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (settlement.Purchase, error) {
	if paymentIntentID == "" {
		return settlement.Purchase{}, settlement.ErrPurchaseNotFound
	}

	return s.loadPurchase(ctx, s.db, goqu.Ex{colPaymentIntentID: paymentIntentID}, false)
}

// PurchasesForBook returns all purchase rows for the given book, oldest first.
func (s PurchaseStore) PurchasesForBook(ctx context.Context, bookID uuid.UUID) ([]settlement.Purchase, error) {
	return s.loadPurchasesForBook(ctx, s.db, bookID)
}

// GetBook returns the book with the given id,
// or settlement.ErrBookNotFound when no row matches.
func (s PurchaseStore) GetBook(ctx context.Context, bookID uuid.UUID) (settlement.Book, error) {
	return s.loadBook(ctx, s.db, bookID, false)
}

// IsBookAvailable derives the book's purchasability from its sold flag and
// its purchase rows, recomputed on demand.
func (s PurchaseStore) IsBookAvailable(ctx context.Context, bookID uuid.UUID) (bool, error) {
	book, bookErr := s.loadBook(ctx, s.db, bookID, false)
	if bookErr != nil {
		return false, bookErr
	}

	purchases, purchasesErr := s.loadPurchasesForBook(ctx, s.db, bookID)
	if purchasesErr != nil {
		return false, purchasesErr
	}

	return settlement.IsAvailable(book, purchases), nil
}

// InsertBook persists a book listing. Listing management is owned elsewhere;
// this exists for seeding and tests of the settlement flows.
func (s PurchaseStore) InsertBook(ctx context.Context, book settlement.Book) error {
	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(s.booksTableName).
		Rows(goqu.Record{
			colID:           book.ID.String(),
			colBookSellerID: book.SellerID.String(),
			colBookTitle:    book.Title,
			colBookAuthor:   book.Author,
			colBookPrice:    book.Price.String(),
			colBookSold:     book.Sold,
		})

	insertQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		s.logError(ctx, logMsgBuildQueryFailed, logAttrError, toSQLErr.Error())
		return toSQLErr
	}

	_, execErr := s.executeStatement(ctx, s.db, insertQuery, logActionInsert)

	return execErr
}

// loadBook reads a single book row, optionally locking it for the duration
// of the surrounding transaction.
func (s PurchaseStore) loadBook(ctx context.Context, runner queryRunner, bookID uuid.UUID, lock bool) (settlement.Book, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.booksTableName).
		Select(colID, colBookSellerID, colBookTitle, colBookAuthor, colBookPrice, colBookSold).
		Where(goqu.Ex{colID: bookID.String()})

	selectStmt = forUpdateClause(selectStmt, lock)

	selectQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		s.logError(ctx, logMsgBuildQueryFailed, logAttrError, toSQLErr.Error())
		return settlement.Book{}, toSQLErr
	}

	rows, queryErr := s.executeQuery(ctx, runner, selectQuery)
	if queryErr != nil {
		return settlement.Book{}, queryErr
	}
	defer s.closeRows(ctx, rows)

	if !rows.Next() {
		return settlement.Book{}, settlement.ErrBookNotFound
	}

	book, scanErr := scanBook(rows)
	if scanErr != nil {
		s.logError(ctx, logMsgScanRowFailed, logAttrError, scanErr.Error())
		return settlement.Book{}, scanErr
	}

	return book, nil
}

// loadPurchase reads a single purchase row matching the given condition,
// optionally locking it for the duration of the surrounding transaction.
func (s PurchaseStore) loadPurchase(ctx context.Context, runner queryRunner, condition goqu.Ex, lock bool) (settlement.Purchase, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.purchasesTableName).
		Select(purchaseColumns()...).
		Where(condition)

	selectStmt = forUpdateClause(selectStmt, lock)

	selectQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		s.logError(ctx, logMsgBuildQueryFailed, logAttrError, toSQLErr.Error())
		return settlement.Purchase{}, toSQLErr
	}

	rows, queryErr := s.executeQuery(ctx, runner, selectQuery)
	if queryErr != nil {
		return settlement.Purchase{}, queryErr
	}
	defer s.closeRows(ctx, rows)

	if !rows.Next() {
		return settlement.Purchase{}, settlement.ErrPurchaseNotFound
	}

	purchase, scanErr := scanPurchase(rows)
	if scanErr != nil {
		s.logError(ctx, logMsgScanRowFailed, logAttrError, scanErr.Error())
		return settlement.Purchase{}, scanErr
	}

	return purchase, nil
}

// loadPurchasesForBook reads all purchase rows for a book, oldest first.
func (s PurchaseStore) loadPurchasesForBook(ctx context.Context, runner queryRunner, bookID uuid.UUID) ([]settlement.Purchase, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.purchasesTableName).
		Select(purchaseColumns()...).
		Where(goqu.Ex{colBookID: bookID.String()}).
		Order(goqu.I(colCreatedAt).Asc())

	selectQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		s.logError(ctx, logMsgBuildQueryFailed, logAttrError, toSQLErr.Error())
		return nil, toSQLErr
	}

	rows, queryErr := s.executeQuery(ctx, runner, selectQuery)
	if queryErr != nil {
		return nil, queryErr
	}
	defer s.closeRows(ctx, rows)

	purchases := make([]settlement.Purchase, 0)

	for rows.Next() {
		purchase, scanErr := scanPurchase(rows)
		if scanErr != nil {
			s.logError(ctx, logMsgScanRowFailed, logAttrError, scanErr.Error())
			return nil, scanErr
		}

		purchases = append(purchases, purchase)
	}

	return purchases, nil
}

// hasOtherCompletedPurchase reports whether a completed purchase other than
// excludeID exists for the book. Cancel uses it to decide whether restoring
// the book's availability would clobber a legitimate sale.
func (s PurchaseStore) hasOtherCompletedPurchase(ctx context.Context, runner queryRunner, bookID uuid.UUID, excludeID uuid.UUID) (bool, error) {
	purchases, loadErr := s.loadPurchasesForBook(ctx, runner, bookID)
	if loadErr != nil {
		return false, loadErr
	}

	for _, purchase := range purchases {
		if purchase.ID != excludeID && purchase.Status == settlement.StatusCompleted {
			return true, nil
		}
	}

	return false, nil
}
