// Package reference serves the read-only vendor registry and past
// expenditures used by verification.
package reference

import (
	"context"
	_ "embed"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/spendshield/internal/model"
)

//go:embed seed.yaml
var defaultSeed []byte

// Store is the lookup interface verification depends on. A miss is
// reported as ok=false, not as an error.
type Store interface {
	VendorByID(ctx context.Context, id string) (model.Vendor, bool, error)
	VendorByName(ctx context.Context, name string) (model.Vendor, bool, error)
	Expenditures(ctx context.Context, vendorID string) ([]model.Expenditure, error)
	Counts(ctx context.Context) (Counts, error)
	Ping(ctx context.Context) error
}

// Seeder is implemented by the database-backed stores.
type Seeder interface {
	Migrate(ctx context.Context) error
	Seed(ctx context.Context, seed *Seed, force bool) (bool, error)
}

// Counts reports the size of the reference data.
type Counts struct {
	Vendors      int `json:"vendors"`
	Expenditures int `json:"expenditures"`
}

// Seed is the on-disk reference data set.
type Seed struct {
	Vendors      []model.Vendor      `yaml:"vendors"`
	Expenditures []model.Expenditure `yaml:"expenditures"`
}

// LoadSeed reads a YAML seed file. An empty path returns the embedded
// default data set.
func LoadSeed(path string) (*Seed, error) {
	data := defaultSeed
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "reference: read seed %s", path)
		}
		data = b
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, eris.Wrap(err, "reference: parse seed")
	}
	if err := seed.validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *Seed) validate() error {
	ids := make(map[string]bool, len(s.Vendors))
	for _, v := range s.Vendors {
		if v.ID == "" || v.Name == "" {
			return eris.New("reference: seed vendor needs vendor_id and vendor_name")
		}
		if ids[v.ID] {
			return eris.Errorf("reference: duplicate vendor_id %s", v.ID)
		}
		ids[v.ID] = true
	}
	for _, e := range s.Expenditures {
		if !ids[e.VendorID] {
			return eris.Errorf("reference: expenditure %s references unknown vendor %s", e.ReferenceNumber, e.VendorID)
		}
	}
	return nil
}

// NormalizeName folds a vendor name to NFC and collapses whitespace so
// visually identical names compare equal.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}

func sortExpenditures(exps []model.Expenditure) {
	sort.SliceStable(exps, func(i, j int) bool {
		if exps[i].TransactionDate == exps[j].TransactionDate {
			return exps[i].ReferenceNumber < exps[j].ReferenceNumber
		}
		return exps[i].TransactionDate < exps[j].TransactionDate
	})
}
