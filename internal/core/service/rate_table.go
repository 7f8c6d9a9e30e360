package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/greenpoint/recycling-ledger/internal/core/domain"
)

// DefaultRates is the points-per-item table used when none is configured.
func DefaultRates() map[string]int64 {
	return map[string]int64{
		string(domain.MaterialPlastic): 5,
		string(domain.MaterialCan):     10,
	}
}

// RateTable maps a material to the points awarded per item. It is built once
// at startup and never mutated.
type RateTable struct {
	rates     map[domain.Material]int64
	materials []domain.Material
}

// NewRateTable copies rates into an immutable table. Keys are normalised the
// same way request input is.
func NewRateTable(rates map[string]int64) (*RateTable, error) {
	if len(rates) == 0 {
		return nil, fmt.Errorf("rate table: no materials configured")
	}
	t := &RateTable{rates: make(map[domain.Material]int64, len(rates))}
	for k, v := range rates {
		m := domain.ParseMaterial(k)
		if m == "" {
			return nil, fmt.Errorf("rate table: empty material name")
		}
		if _, dup := t.rates[m]; dup {
			return nil, fmt.Errorf("rate table: material %q configured twice", m)
		}
		t.rates[m] = v
		t.materials = append(t.materials, m)
	}
	sort.Slice(t.materials, func(i, j int) bool { return t.materials[i] < t.materials[j] })
	return t, nil
}

// Rate returns the points per item for m, or domain.ErrUnknownMaterial.
func (t *RateTable) Rate(m domain.Material) (int64, error) {
	r, ok := t.rates[m]
	if !ok {
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownMaterial, m)
	}
	return r, nil
}

// Has reports whether m is a recognised material.
func (t *RateTable) Has(m domain.Material) bool {
	_, ok := t.rates[m]
	return ok
}

// Points computes rate(m) * quantity.
func (t *RateTable) Points(m domain.Material, quantity int) (int64, error) {
	r, err := t.Rate(m)
	if err != nil {
		return 0, err
	}
	if quantity > MaxQuantity {
		return 0, fmt.Errorf("%w: %d exceeds the per-scan limit of %d", domain.ErrInvalidQuantity, quantity, MaxQuantity)
	}
	q := int64(quantity)
	if r != 0 && q > math.MaxInt64/abs(r) {
		return 0, fmt.Errorf("%w: %d items of %s overflows the point balance", domain.ErrInvalidQuantity, quantity, m)
	}
	return r * q, nil
}

// Materials lists the configured materials in sorted order.
func (t *RateTable) Materials() []domain.Material {
	out := make([]domain.Material, len(t.materials))
	copy(out, t.materials)
	return out
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
