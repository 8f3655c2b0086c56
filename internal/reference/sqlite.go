package reference

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spendshield/internal/model"
)

// SQLite serves reference data from the vendors and past_expenditures
// tables. It usually shares the run store's *sql.DB.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an open database handle.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS vendors (
	vendor_id         TEXT PRIMARY KEY,
	vendor_name       TEXT NOT NULL,
	name_key          TEXT NOT NULL,
	registration_date TEXT NOT NULL DEFAULT '',
	business_type     TEXT NOT NULL DEFAULT '',
	risk_score        REAL NOT NULL DEFAULT 0,
	blacklisted       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS past_expenditures (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	vendor_id        TEXT NOT NULL REFERENCES vendors(vendor_id),
	reference_number TEXT NOT NULL,
	transaction_date TEXT NOT NULL,
	amount           REAL NOT NULL,
	item_description TEXT NOT NULL,
	quantity         REAL NOT NULL DEFAULT 0,
	unit_price       REAL NOT NULL DEFAULT 0,
	department       TEXT NOT NULL DEFAULT '',
	fiscal_year      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_vendors_name_key ON vendors(name_key);
CREATE INDEX IF NOT EXISTS idx_past_expenditures_vendor ON past_expenditures(vendor_id);
`

// Migrate creates the reference tables.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "reference: sqlite migrate")
}

// Seed loads the seed when the tables are empty, or unconditionally when
// force is set. It reports whether rows were written.
func (s *SQLite) Seed(ctx context.Context, seed *Seed, force bool) (bool, error) {
	if !force {
		c, err := s.Counts(ctx)
		if err != nil {
			return false, err
		}
		if c.Vendors > 0 {
			return false, nil
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "reference: sqlite begin seed")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, q := range []string{`DELETE FROM past_expenditures`, `DELETE FROM vendors`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return false, eris.Wrap(err, "reference: sqlite clear")
		}
	}
	for _, v := range seed.Vendors {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO vendors (vendor_id, vendor_name, name_key, registration_date, business_type, risk_score, blacklisted) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.Name, NormalizeName(v.Name), v.RegistrationDate, v.BusinessType, v.RiskScore, v.Blacklisted,
		)
		if err != nil {
			return false, eris.Wrapf(err, "reference: sqlite insert vendor %s", v.ID)
		}
	}
	for _, e := range seed.Expenditures {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO past_expenditures (vendor_id, reference_number, transaction_date, amount, item_description, quantity, unit_price, department, fiscal_year) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.VendorID, e.ReferenceNumber, e.TransactionDate, e.Amount, e.ItemDescription, e.Quantity, e.UnitPrice, e.Department, e.FiscalYear,
		)
		if err != nil {
			return false, eris.Wrapf(err, "reference: sqlite insert expenditure %s", e.ReferenceNumber)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "reference: sqlite commit seed")
	}
	return true, nil
}

const vendorColumns = `vendor_id, vendor_name, registration_date, business_type, risk_score, blacklisted`

func (s *SQLite) VendorByID(ctx context.Context, id string) (model.Vendor, bool, error) {
	return s.vendor(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE vendor_id = ?`, id)
}

func (s *SQLite) VendorByName(ctx context.Context, name string) (model.Vendor, bool, error) {
	return s.vendor(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE name_key = ? LIMIT 1`, NormalizeName(name))
}

func (s *SQLite) vendor(ctx context.Context, query string, arg string) (model.Vendor, bool, error) {
	var v model.Vendor
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&v.ID, &v.Name, &v.RegistrationDate, &v.BusinessType, &v.RiskScore, &v.Blacklisted)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Vendor{}, false, nil
	}
	if err != nil {
		return model.Vendor{}, false, eris.Wrap(err, "reference: sqlite vendor lookup")
	}
	return v, true, nil
}

func (s *SQLite) Expenditures(ctx context.Context, vendorID string) ([]model.Expenditure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT vendor_id, reference_number, transaction_date, amount, item_description, quantity, unit_price, department, fiscal_year
		 FROM past_expenditures WHERE vendor_id = ? ORDER BY transaction_date, reference_number`,
		vendorID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "reference: sqlite expenditures")
	}
	defer rows.Close() //nolint:errcheck

	exps := []model.Expenditure{}
	for rows.Next() {
		var e model.Expenditure
		if err := rows.Scan(&e.VendorID, &e.ReferenceNumber, &e.TransactionDate, &e.Amount,
			&e.ItemDescription, &e.Quantity, &e.UnitPrice, &e.Department, &e.FiscalYear); err != nil {
			return nil, eris.Wrap(err, "reference: sqlite scan expenditure")
		}
		exps = append(exps, e)
	}
	return exps, eris.Wrap(rows.Err(), "reference: sqlite expenditures iterate")
}

func (s *SQLite) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM vendors), (SELECT COUNT(*) FROM past_expenditures)`,
	).Scan(&c.Vendors, &c.Expenditures)
	return c, eris.Wrap(err, "reference: sqlite counts")
}

func (s *SQLite) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "reference: sqlite ping")
}
