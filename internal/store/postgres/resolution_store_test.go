package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophezy/oracle-resolver/internal/domain"
	"github.com/prophezy/oracle-resolver/internal/store/postgres"
)

var (
	transitionRe = regexp.QuoteMeta("UPDATE markets SET status = 'resolved'")
	insertRe     = regexp.QuoteMeta("INSERT INTO oracle_resolutions")
	existsRe     = regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM markets")
)

func sampleRecord(marketID int64, outcome domain.Outcome) domain.ResolutionRecord {
	return domain.ResolutionRecord{
		MarketID:   marketID,
		Outcome:    outcome,
		Confidence: 0.95,
		ResolvedBy: "oracle",
		Mechanism:  domain.MechanismFastPrice,
		Value:      50000,
		Threshold:  50000,
		ResolvedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestResolutionStore_CommitTransitionsAndInserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rec := sampleRecord(42, domain.OutcomeYes)

	mock.ExpectBegin()
	mock.ExpectExec(transitionRe).
		WithArgs(int16(1), rec.ResolvedAt, int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(insertRe).
		WithArgs(int64(42), int16(1), 0.95, "oracle", "fast-price", 50000.0, 50000.0, "", rec.ResolvedAt).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectCommit()

	store := postgres.NewResolutionStore(mock)
	got, err := store.Commit(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, int64(9), got.ID)
	assert.True(t, got.Authoritative)
	assert.Equal(t, domain.OutcomeYes, got.Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolutionStore_CommitZeroRowsIsAlreadyResolved(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(transitionRe).
		WithArgs(int16(2), pgxmock.AnyArg(), int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(existsRe).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	store := postgres.NewResolutionStore(mock)
	_, err = store.Commit(context.Background(), sampleRecord(7, domain.OutcomeNo))

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAlreadyResolved))
	// No insert was attempted.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolutionStore_CommitUnknownMarket(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(transitionRe).
		WithArgs(int16(1), pgxmock.AnyArg(), int64(404)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(existsRe).
		WithArgs(int64(404)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	store := postgres.NewResolutionStore(mock)
	_, err = store.Commit(context.Background(), sampleRecord(404, domain.OutcomeYes))

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolutionStore_CommitRollsBackOnInsertFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(transitionRe).
		WithArgs(int16(1), pgxmock.AnyArg(), int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(insertRe).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	store := postgres.NewResolutionStore(mock)
	_, err = store.Commit(context.Background(), sampleRecord(5, domain.OutcomeYes))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolutionStore_CommitRejectsUndecidedOutcome(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := postgres.NewResolutionStore(mock)
	_, err = store.Commit(context.Background(), sampleRecord(1, domain.OutcomeUndecided))

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarketStore_LinkAddressFirstWins(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE markets SET market_address = $1")).
		WithArgs("0xabcdef0000000000000000000000000000000001", int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := postgres.NewMarketStore(mock)
	err = store.LinkAddress(context.Background(), 3, "0xABCDEF0000000000000000000000000000000001")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
