package reference

import (
	"context"

	"github.com/sells-group/spendshield/internal/model"
)

// Static serves reference data from memory. It is built once and never
// mutated, so concurrent reads need no locking.
type Static struct {
	byID   map[string]model.Vendor
	byName map[string]model.Vendor
	exps   map[string][]model.Expenditure
	total  int
}

// NewStatic indexes a seed for lookup.
func NewStatic(seed *Seed) *Static {
	s := &Static{
		byID:   make(map[string]model.Vendor, len(seed.Vendors)),
		byName: make(map[string]model.Vendor, len(seed.Vendors)),
		exps:   make(map[string][]model.Expenditure),
		total:  len(seed.Expenditures),
	}
	for _, v := range seed.Vendors {
		s.byID[v.ID] = v
		s.byName[NormalizeName(v.Name)] = v
	}
	for _, e := range seed.Expenditures {
		s.exps[e.VendorID] = append(s.exps[e.VendorID], e)
	}
	for id := range s.exps {
		sortExpenditures(s.exps[id])
	}
	return s
}

func (s *Static) VendorByID(_ context.Context, id string) (model.Vendor, bool, error) {
	v, ok := s.byID[id]
	return v, ok, nil
}

func (s *Static) VendorByName(_ context.Context, name string) (model.Vendor, bool, error) {
	v, ok := s.byName[NormalizeName(name)]
	return v, ok, nil
}

func (s *Static) Expenditures(_ context.Context, vendorID string) ([]model.Expenditure, error) {
	out := make([]model.Expenditure, len(s.exps[vendorID]))
	copy(out, s.exps[vendorID])
	return out, nil
}

func (s *Static) Counts(context.Context) (Counts, error) {
	return Counts{Vendors: len(s.byID), Expenditures: s.total}, nil
}

func (s *Static) Ping(context.Context) error { return nil }
