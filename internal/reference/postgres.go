package reference

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/spendshield/internal/db"
	"github.com/sells-group/spendshield/internal/model"
)

// Postgres serves reference data from Postgres, usually over the run
// store's pool.
type Postgres struct {
	pool db.Pool
}

// NewPostgres wraps a pool.
func NewPostgres(pool db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS vendors (
	vendor_id         TEXT PRIMARY KEY,
	vendor_name       TEXT NOT NULL,
	name_key          TEXT NOT NULL,
	registration_date TEXT NOT NULL DEFAULT '',
	business_type     TEXT NOT NULL DEFAULT '',
	risk_score        DOUBLE PRECISION NOT NULL DEFAULT 0,
	blacklisted       BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS past_expenditures (
	vendor_id        TEXT NOT NULL,
	reference_number TEXT NOT NULL,
	transaction_date TEXT NOT NULL,
	amount           DOUBLE PRECISION NOT NULL,
	item_description TEXT NOT NULL,
	quantity         DOUBLE PRECISION NOT NULL DEFAULT 0,
	unit_price       DOUBLE PRECISION NOT NULL DEFAULT 0,
	department       TEXT NOT NULL DEFAULT '',
	fiscal_year      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_vendors_name_key ON vendors(name_key);
CREATE INDEX IF NOT EXISTS idx_past_expenditures_vendor ON past_expenditures(vendor_id);
`

var (
	vendorCopyColumns      = []string{"vendor_id", "vendor_name", "name_key", "registration_date", "business_type", "risk_score", "blacklisted"}
	expenditureCopyColumns = []string{"vendor_id", "reference_number", "transaction_date", "amount", "item_description", "quantity", "unit_price", "department", "fiscal_year"}
)

// Migrate creates the reference tables.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "reference: postgres migrate")
}

// Seed loads the seed with COPY when the tables are empty. With force the
// tables are replaced, each in its own transaction.
func (p *Postgres) Seed(ctx context.Context, seed *Seed, force bool) (bool, error) {
	if !force {
		c, err := p.Counts(ctx)
		if err != nil {
			return false, err
		}
		if c.Vendors > 0 {
			return false, nil
		}
	}

	vendors := make([][]any, 0, len(seed.Vendors))
	for _, v := range seed.Vendors {
		vendors = append(vendors, []any{v.ID, v.Name, NormalizeName(v.Name), v.RegistrationDate, v.BusinessType, v.RiskScore, v.Blacklisted})
	}
	exps := make([][]any, 0, len(seed.Expenditures))
	for _, e := range seed.Expenditures {
		exps = append(exps, []any{e.VendorID, e.ReferenceNumber, e.TransactionDate, e.Amount, e.ItemDescription, e.Quantity, e.UnitPrice, e.Department, e.FiscalYear})
	}

	load := db.CopyFrom
	if force {
		load = db.ReplaceAll
	}
	if _, err := load(ctx, p.pool, "vendors", vendorCopyColumns, vendors); err != nil {
		return false, eris.Wrap(err, "reference: postgres seed vendors")
	}
	if _, err := load(ctx, p.pool, "past_expenditures", expenditureCopyColumns, exps); err != nil {
		return false, eris.Wrap(err, "reference: postgres seed expenditures")
	}
	return true, nil
}

const pgVendorColumns = `vendor_id, vendor_name, registration_date, business_type, risk_score, blacklisted`

func (p *Postgres) VendorByID(ctx context.Context, id string) (model.Vendor, bool, error) {
	return p.vendor(ctx, `SELECT `+pgVendorColumns+` FROM vendors WHERE vendor_id = $1`, id)
}

func (p *Postgres) VendorByName(ctx context.Context, name string) (model.Vendor, bool, error) {
	return p.vendor(ctx, `SELECT `+pgVendorColumns+` FROM vendors WHERE name_key = $1 LIMIT 1`, NormalizeName(name))
}

func (p *Postgres) vendor(ctx context.Context, query string, arg string) (model.Vendor, bool, error) {
	var v model.Vendor
	err := p.pool.QueryRow(ctx, query, arg).
		Scan(&v.ID, &v.Name, &v.RegistrationDate, &v.BusinessType, &v.RiskScore, &v.Blacklisted)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Vendor{}, false, nil
	}
	if err != nil {
		return model.Vendor{}, false, eris.Wrap(err, "reference: postgres vendor lookup")
	}
	return v, true, nil
}

func (p *Postgres) Expenditures(ctx context.Context, vendorID string) ([]model.Expenditure, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT vendor_id, reference_number, transaction_date, amount, item_description, quantity, unit_price, department, fiscal_year
		 FROM past_expenditures WHERE vendor_id = $1 ORDER BY transaction_date, reference_number`,
		vendorID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "reference: postgres expenditures")
	}
	defer rows.Close()

	exps := []model.Expenditure{}
	for rows.Next() {
		var e model.Expenditure
		if err := rows.Scan(&e.VendorID, &e.ReferenceNumber, &e.TransactionDate, &e.Amount,
			&e.ItemDescription, &e.Quantity, &e.UnitPrice, &e.Department, &e.FiscalYear); err != nil {
			return nil, eris.Wrap(err, "reference: postgres scan expenditure")
		}
		exps = append(exps, e)
	}
	return exps, eris.Wrap(rows.Err(), "reference: postgres expenditures iterate")
}

func (p *Postgres) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := p.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM vendors), (SELECT COUNT(*) FROM past_expenditures)`,
	).Scan(&c.Vendors, &c.Expenditures)
	return c, eris.Wrap(err, "reference: postgres counts")
}

func (p *Postgres) Ping(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "reference: postgres ping")
}
