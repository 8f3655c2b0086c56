package reference

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgres(mock), mock
}

func TestPostgres_VendorByName(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectQuery(`FROM vendors WHERE name_key = \$1`).
		WithArgs("TechPro Solutions").
		WillReturnRows(pgxmock.NewRows([]string{"vendor_id", "vendor_name", "registration_date", "business_type", "risk_score", "blacklisted"}).
			AddRow("VND002", "TechPro Solutions", "2019-06-20", "IT Services", 0.2, false))

	v, ok, err := p.VendorByName(context.Background(), " TechPro  Solutions")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "VND002", v.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_VendorByID_Miss(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectQuery(`FROM vendors WHERE vendor_id = \$1`).
		WithArgs("VND999").
		WillReturnError(pgx.ErrNoRows)

	_, ok, err := p.VendorByID(context.Background(), "VND999")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgres_VendorByID_Error(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectQuery(`FROM vendors`).
		WithArgs("VND001").
		WillReturnError(errors.New("connection reset by peer"))

	_, ok, err := p.VendorByID(context.Background(), "VND001")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestPostgres_Expenditures(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectQuery(`FROM past_expenditures WHERE vendor_id = \$1`).
		WithArgs("VND003").
		WillReturnRows(pgxmock.NewRows(expenditureCopyColumns).
			AddRow("VND003", "INV-2023-090", "2023-09-01", 25000.0, "Office desks and chairs", 50.0, 500.0, "Facilities", 2023))

	exps, err := p.Expenditures(context.Background(), "VND003")
	require.NoError(t, err)
	require.Len(t, exps, 1)
	assert.Equal(t, 500.0, exps[0].UnitPrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SeedSkipsWhenPopulated(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT \(SELECT COUNT\(\*\) FROM vendors\)`).
		WillReturnRows(pgxmock.NewRows([]string{"vendors", "expenditures"}).AddRow(4, 5))

	seeded, err := p.Seed(context.Background(), defaultSeedT(t), false)
	require.NoError(t, err)
	assert.False(t, seeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SeedCopies(t *testing.T) {
	p, mock := newMockPostgres(t)
	seed := defaultSeedT(t)

	mock.ExpectQuery(`SELECT \(SELECT COUNT\(\*\) FROM vendors\)`).
		WillReturnRows(pgxmock.NewRows([]string{"vendors", "expenditures"}).AddRow(0, 0))
	mock.ExpectCopyFrom(pgx.Identifier{"vendors"}, vendorCopyColumns).WillReturnResult(4)
	mock.ExpectCopyFrom(pgx.Identifier{"past_expenditures"}, expenditureCopyColumns).WillReturnResult(5)

	seeded, err := p.Seed(context.Background(), seed, false)
	require.NoError(t, err)
	assert.True(t, seeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SeedForceReplaces(t *testing.T) {
	p, mock := newMockPostgres(t)
	seed := defaultSeedT(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "vendors"`).WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(pgx.Identifier{"vendors"}, vendorCopyColumns).WillReturnResult(4)
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "past_expenditures"`).WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectCopyFrom(pgx.Identifier{"past_expenditures"}, expenditureCopyColumns).WillReturnResult(5)
	mock.ExpectCommit()

	seeded, err := p.Seed(context.Background(), seed, true)
	require.NoError(t, err)
	assert.True(t, seeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MigrateAndPing(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS vendors`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, p.Migrate(context.Background()))
	require.NoError(t, p.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
