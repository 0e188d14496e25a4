package postgresengine

import (
	"context"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/shelfmarket/purchase-settlement-go/settlement"
	"github.com/shelfmarket/purchase-settlement-go/settlement/postgresengine/internal/adapters"
)

// Operation names for metrics and tracing.
const (
	opCreatePending      = "create_pending"
	opComplete           = "complete"
	opCancel             = "cancel"
	opDeletePending      = "delete_pending"
	opSetCheckoutSession = "set_checkout_session"

	outcomeApplied    = "applied"
	outcomeIdempotent = "idempotent"
	outcomeRejected   = "rejected"
	outcomeError      = "error"
)

// CreatePending creates a pending purchase of the given book by the given
// buyer, with the fee split frozen from the book's current price.
//
// The eligibility check and the insert run inside one transaction with the
// book row locked, so two concurrent buyers cannot both pass the
// availability read before either insert commits. A unique-constraint
// violation from a racing insert is mapped to settlement.ErrDuplicatePurchase,
// the same outcome the in-window check produces.
func (s PurchaseStore) CreatePending(ctx context.Context, bookID uuid.UUID, buyerID uuid.UUID) (settlement.Purchase, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "settlement.create_pending")

	purchase, err := s.createPending(ctx, bookID, buyerID)
	if err != nil {
		s.recordOperationMetrics(opCreatePending, outcomeForError(err), time.Since(start))
		s.finishSpan(span, outcomeForError(err))

		return settlement.Purchase{}, err
	}

	s.recordOperationMetrics(opCreatePending, outcomeApplied, time.Since(start))
	s.finishSpan(span, outcomeApplied)

	s.logOperation(ctx, logMsgPurchaseCreated,
		logAttrPurchaseID, purchase.ID.String(),
		logAttrBookID, bookID.String(),
		logAttrBuyerID, buyerID.String(),
		logAttrDurationMS, durationToMilliseconds(time.Since(start)),
	)

	return purchase, nil
}

func (s PurchaseStore) createPending(ctx context.Context, bookID uuid.UUID, buyerID uuid.UUID) (settlement.Purchase, error) {
	tx, beginErr := s.db.Begin(ctx)
	if beginErr != nil {
		s.logError(ctx, logMsgBeginTxFailed, logAttrError, beginErr.Error())
		return settlement.Purchase{}, beginErr
	}
	defer s.rollbackTx(ctx, tx)

	book, bookErr := s.loadBook(ctx, tx, bookID, true)
	if bookErr != nil {
		return settlement.Purchase{}, bookErr
	}

	purchases, purchasesErr := s.loadPurchasesForBook(ctx, tx, bookID)
	if purchasesErr != nil {
		return settlement.Purchase{}, purchasesErr
	}

	if eligibilityErr := settlement.CheckEligibility(book, purchases, buyerID); eligibilityErr != nil {
		return settlement.Purchase{}, eligibilityErr
	}

	if _, blocked := settlement.FindBlockingPurchase(purchases, buyerID); blocked {
		return settlement.Purchase{}, settlement.ErrDuplicatePurchase
	}

	purchase, buildErr := settlement.NewPendingPurchase(book, buyerID, s.feeCalculator, time.Now().UTC())
	if buildErr != nil {
		return settlement.Purchase{}, buildErr
	}

	insertQuery, toSQLErr := s.buildInsertPurchaseQuery(purchase)
	if toSQLErr != nil {
		return settlement.Purchase{}, toSQLErr
	}

	if _, execErr := s.executeStatement(ctx, tx, insertQuery, logActionInsert); execErr != nil {
		if isUniqueViolation(execErr) {
			s.logOperation(ctx, logMsgDuplicatePurchase,
				logAttrBookID, bookID.String(),
				logAttrBuyerID, buyerID.String(),
			)

			return settlement.Purchase{}, settlement.ErrDuplicatePurchase
		}

		return settlement.Purchase{}, execErr
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		if isUniqueViolation(commitErr) {
			return settlement.Purchase{}, settlement.ErrDuplicatePurchase
		}

		s.logError(ctx, logMsgCommitTxFailed, logAttrError, commitErr.Error())

		return settlement.Purchase{}, commitErr
	}

	return purchase, nil
}

// Complete transitions a purchase from pending to completed, storing the
// payment-intent id and the shipping address, and marks the book sold in
// the same transaction. Completing an already-completed purchase is a
// no-op success, so duplicate notifications never double-mutate book state.
func (s PurchaseStore) Complete(ctx context.Context, purchaseID uuid.UUID, paymentIntentID string, shipping settlement.ShippingAddress) (settlement.TransitionDecision, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "settlement.complete")

	decision, err := s.applyTransition(ctx, purchaseID, opComplete, func(purchase settlement.Purchase, _ bool) settlement.TransitionDecision {
		return settlement.DecideComplete(purchase, paymentIntentID, shipping, time.Now().UTC())
	})

	s.recordTransition(ctx, span, opComplete, logMsgPurchaseCompleted, purchaseID, decision, err, start)

	return decision, err
}

// Cancel transitions a purchase from pending to cancelled, recording the
// cancellation time and restoring the book's availability unless the book
// was sold through a different completed purchase. Cancelling an
// already-cancelled purchase is a no-op success.
func (s PurchaseStore) Cancel(ctx context.Context, purchaseID uuid.UUID) (settlement.TransitionDecision, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "settlement.cancel")

	decision, err := s.applyTransition(ctx, purchaseID, opCancel, func(purchase settlement.Purchase, bookSoldElsewhere bool) settlement.TransitionDecision {
		return settlement.DecideCancel(purchase, bookSoldElsewhere, time.Now().UTC())
	})

	s.recordTransition(ctx, span, opCancel, logMsgPurchaseCancelled, purchaseID, decision, err, start)

	return decision, err
}

// applyTransition loads the purchase under a row lock, runs the pure decide
// function, and commits the purchase-row update together with the book-flag
// update as one atomic unit: either both persist or neither does.
func (s PurchaseStore) applyTransition(
	ctx context.Context,
	purchaseID uuid.UUID,
	operation string,
	decide func(purchase settlement.Purchase, bookSoldElsewhere bool) settlement.TransitionDecision,
) (settlement.TransitionDecision, error) {

	tx, beginErr := s.db.Begin(ctx)
	if beginErr != nil {
		s.logError(ctx, logMsgBeginTxFailed, logAttrError, beginErr.Error())
		return settlement.TransitionDecision{}, beginErr
	}
	defer s.rollbackTx(ctx, tx)

	purchase, loadErr := s.loadPurchase(ctx, tx, goqu.Ex{colID: purchaseID.String()}, true)
	if loadErr != nil {
		return settlement.TransitionDecision{}, loadErr
	}

	bookSoldElsewhere := false
	if operation == opCancel {
		// The book row is locked before the guard read so a completion for
		// another purchase on the same book cannot commit between reading
		// "not sold elsewhere" and restoring the availability flag.
		if _, lockErr := s.loadBook(ctx, tx, purchase.BookID, true); lockErr != nil {
			return settlement.TransitionDecision{}, lockErr
		}

		var checkErr error

		bookSoldElsewhere, checkErr = s.hasOtherCompletedPurchase(ctx, tx, purchase.BookID, purchase.ID)
		if checkErr != nil {
			return settlement.TransitionDecision{}, checkErr
		}
	}

	decision := decide(purchase, bookSoldElsewhere)

	if decision.IsIdempotent() {
		return decision, nil
	}

	if rejectionErr := decision.HasError(); rejectionErr != nil {
		return decision, rejectionErr
	}

	if applyErr := s.persistTransition(ctx, tx, purchase, decision); applyErr != nil {
		return settlement.TransitionDecision{}, applyErr
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		s.logError(ctx, logMsgCommitTxFailed, logAttrError, commitErr.Error())
		return settlement.TransitionDecision{}, commitErr
	}

	return decision, nil
}

// persistTransition writes the decided purchase row, guarded by the prior
// status so a racing transition surfaces as a concurrency conflict, and
// applies the decided book-flag side effect.
func (s PurchaseStore) persistTransition(
	ctx context.Context,
	tx adapters.DBTx,
	previous settlement.Purchase,
	decision settlement.TransitionDecision,
) error {

	updateQuery, toSQLErr := s.buildUpdatePurchaseQuery(decision.Purchase, previous.Status)
	if toSQLErr != nil {
		return toSQLErr
	}

	rowsAffected, execErr := s.executeStatement(ctx, tx, updateQuery, logActionUpdate)
	if execErr != nil {
		return execErr
	}

	if rowsAffected == 0 {
		s.logOperation(ctx, logMsgConcurrencyConflict,
			logAttrPurchaseID, previous.ID.String(),
			logAttrStatus, string(previous.Status),
			logAttrRowsAffected, rowsAffected,
		)

		return settlement.ErrConcurrencyConflict
	}

	switch {
	case decision.MarkBookSold:
		return s.updateBookSoldFlag(ctx, tx, previous.BookID, true)
	case decision.RestoreBookAvailability:
		return s.updateBookSoldFlag(ctx, tx, previous.BookID, false)
	default:
		return nil
	}
}

// recordTransition emits metrics, span status, and the operation log line for a transition.
func (s PurchaseStore) recordTransition(
	ctx context.Context,
	span settlement.SpanContext,
	operation string,
	appliedLogMsg string,
	purchaseID uuid.UUID,
	decision settlement.TransitionDecision,
	err error,
	start time.Time,
) {

	duration := time.Since(start)

	switch {
	case err != nil && decision.HasError() != nil:
		s.recordOperationMetrics(operation, outcomeRejected, duration)
		s.finishSpan(span, outcomeRejected)
		s.logOperation(ctx, logMsgTransitionRejected,
			logAttrPurchaseID, purchaseID.String(),
			logAttrError, err.Error(),
		)

	case err != nil:
		s.recordOperationMetrics(operation, outcomeError, duration)
		s.finishSpan(span, outcomeError)

	case decision.IsIdempotent():
		s.recordOperationMetrics(operation, outcomeIdempotent, duration)
		s.finishSpan(span, outcomeIdempotent)
		s.logOperation(ctx, logMsgIdempotentTransition,
			logAttrPurchaseID, purchaseID.String(),
			logAttrStatus, string(decision.Purchase.Status),
		)

	default:
		s.recordOperationMetrics(operation, outcomeApplied, duration)
		s.finishSpan(span, outcomeApplied)
		s.logOperation(ctx, appliedLogMsg,
			logAttrPurchaseID, purchaseID.String(),
			logAttrDurationMS, durationToMilliseconds(duration),
		)
	}
}

// DeletePending removes a pending purchase. It is the compensating rollback
// for a failed payment-session creation, so the row does not leak as an
// orphaned pending purchase blocking the book's availability indefinitely.
// Deleting a purchase that already left pending fails with a concurrency
// conflict; such a row must transition normally instead.
func (s PurchaseStore) DeletePending(ctx context.Context, purchaseID uuid.UUID) error {
	start := time.Now()

	deleteStmt := goqu.Dialect(dialectPostgres).
		Delete(s.purchasesTableName).
		Where(goqu.Ex{
			colID:     purchaseID.String(),
			colStatus: string(settlement.StatusPending),
		})

	deleteQuery, _, toSQLErr := deleteStmt.ToSQL()
	if toSQLErr != nil {
		s.logError(ctx, logMsgBuildQueryFailed, logAttrError, toSQLErr.Error())
		return toSQLErr
	}

	rowsAffected, execErr := s.executeStatement(ctx, s.db, deleteQuery, logActionDelete)
	if execErr != nil {
		s.recordOperationMetrics(opDeletePending, outcomeError, time.Since(start))
		return execErr
	}

	if rowsAffected == 0 {
		s.recordOperationMetrics(opDeletePending, outcomeRejected, time.Since(start))
		return settlement.ErrConcurrencyConflict
	}

	s.recordOperationMetrics(opDeletePending, outcomeApplied, time.Since(start))
	s.logOperation(ctx, logMsgPurchaseDeleted, logAttrPurchaseID, purchaseID.String())

	return nil
}

// SetCheckoutSession stores the provider's checkout-session id on a pending purchase.
func (s PurchaseStore) SetCheckoutSession(ctx context.Context, purchaseID uuid.UUID, sessionID string) error {
	start := time.Now()

	updateStmt := goqu.Dialect(dialectPostgres).
		Update(s.purchasesTableName).
		Set(goqu.Record{
			colCheckoutSessionID: sessionID,
			colUpdatedAt:         time.Now().UTC(),
		}).
		Where(goqu.Ex{
			colID:     purchaseID.String(),
			colStatus: string(settlement.StatusPending),
		})

	updateQuery, _, toSQLErr := updateStmt.ToSQL()
	if toSQLErr != nil {
		s.logError(ctx, logMsgBuildQueryFailed, logAttrError, toSQLErr.Error())
		return toSQLErr
	}

	rowsAffected, execErr := s.executeStatement(ctx, s.db, updateQuery, logActionUpdate)
	if execErr != nil {
		s.recordOperationMetrics(opSetCheckoutSession, outcomeError, time.Since(start))
		return execErr
	}

	if rowsAffected == 0 {
		s.recordOperationMetrics(opSetCheckoutSession, outcomeRejected, time.Since(start))
		return settlement.ErrConcurrencyConflict
	}

	s.recordOperationMetrics(opSetCheckoutSession, outcomeApplied, time.Since(start))

	return nil
}

// buildInsertPurchaseQuery builds the insert statement for a new purchase row.
func (s PurchaseStore) buildInsertPurchaseQuery(purchase settlement.Purchase) (sqlQueryString, error) {
	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(s.purchasesTableName).
		Rows(purchaseRecord(purchase))

	insertQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", toSQLErr
	}

	return insertQuery, nil
}

// buildUpdatePurchaseQuery builds the guarded update statement for a transition:
// the row is only written if it still holds the status the decision was made from.
func (s PurchaseStore) buildUpdatePurchaseQuery(purchase settlement.Purchase, expectedStatus settlement.Status) (sqlQueryString, error) {
	record := purchaseRecord(purchase)
	delete(record, colID)
	delete(record, colCreatedAt)

	updateStmt := goqu.Dialect(dialectPostgres).
		Update(s.purchasesTableName).
		Set(record).
		Where(goqu.Ex{
			colID:     purchase.ID.String(),
			colStatus: string(expectedStatus),
		})

	updateQuery, _, toSQLErr := updateStmt.ToSQL()
	if toSQLErr != nil {
		return "", toSQLErr
	}

	return updateQuery, nil
}

// updateBookSoldFlag sets the book's sold flag inside the transition's transaction.
func (s PurchaseStore) updateBookSoldFlag(ctx context.Context, tx adapters.DBTx, bookID uuid.UUID, sold bool) error {
	updateStmt := goqu.Dialect(dialectPostgres).
		Update(s.booksTableName).
		Set(goqu.Record{colBookSold: sold}).
		Where(goqu.Ex{colID: bookID.String()})

	updateQuery, _, toSQLErr := updateStmt.ToSQL()
	if toSQLErr != nil {
		s.logError(ctx, logMsgBuildQueryFailed, logAttrError, toSQLErr.Error())
		return toSQLErr
	}

	rowsAffected, execErr := s.executeStatement(ctx, tx, updateQuery, logActionUpdate)
	if execErr != nil {
		return execErr
	}

	if rowsAffected == 0 {
		return settlement.ErrBookNotFound
	}

	return nil
}

// outcomeForError maps an error from createPending to a metrics outcome label.
func outcomeForError(err error) string {
	var eligibilityErr *settlement.EligibilityError
	var validationErr *settlement.ValidationError

	switch {
	case errors.As(err, &eligibilityErr),
		errors.As(err, &validationErr),
		errors.Is(err, settlement.ErrDuplicatePurchase):
		return outcomeRejected
	default:
		return outcomeError
	}
}

// forUpdateClause applies a row lock to a select when requested.
func forUpdateClause(stmt *goqu.SelectDataset, lock bool) *goqu.SelectDataset {
	if lock {
		return stmt.ForUpdate(exp.Wait)
	}

	return stmt
}
