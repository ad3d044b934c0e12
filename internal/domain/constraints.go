package domain

import (
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ConstraintKind identifies a Constraint variant
type ConstraintKind string

const (
	KindBudget          ConstraintKind = "budget"
	KindCapacity        ConstraintKind = "capacity"
	KindSupplierMinimum ConstraintKind = "supplier_minimum"
	KindLeadTime        ConstraintKind = "lead_time"
	KindServiceLevel    ConstraintKind = "service_level"
)

// Constraint is one immutable input to an optimization run. The set of
// implementations is closed to this package.
type Constraint interface {
	Kind() ConstraintKind
	String() string
	constraint()
}

// Budget caps the total purchase spend of a plan
type Budget struct {
	MaxSpend decimal.Decimal
}

// Capacity caps the units a warehouse can hold. An empty Warehouse applies to
// every item.
type Capacity struct {
	Warehouse string
	MaxUnits  float64
}

// SupplierMinimum is the smallest quantity a supplier accepts for a SKU
type SupplierMinimum struct {
	SKU    string
	MinQty float64
}

// LeadTime is the replenishment delay for a SKU in days
type LeadTime struct {
	SKU  string
	Days float64
}

// ServiceLevel is the target probability of not stocking out during lead time
type ServiceLevel struct {
	SKU    string
	Target float64
}

func (Budget) Kind() ConstraintKind          { return KindBudget }
func (Capacity) Kind() ConstraintKind        { return KindCapacity }
func (SupplierMinimum) Kind() ConstraintKind { return KindSupplierMinimum }
func (LeadTime) Kind() ConstraintKind        { return KindLeadTime }
func (ServiceLevel) Kind() ConstraintKind    { return KindServiceLevel }

func (Budget) constraint()          {}
func (Capacity) constraint()        {}
func (SupplierMinimum) constraint() {}
func (LeadTime) constraint()        {}
func (ServiceLevel) constraint()    {}

func (c Budget) String() string { return fmt.Sprintf("budget(%s)", c.MaxSpend.StringFixed(2)) }

func (c Capacity) String() string {
	if c.Warehouse == "" {
		return fmt.Sprintf("capacity(%g)", c.MaxUnits)
	}
	return fmt.Sprintf("capacity(%s, %g)", c.Warehouse, c.MaxUnits)
}

func (c SupplierMinimum) String() string {
	return fmt.Sprintf("supplier_minimum(%s, %g)", c.SKU, c.MinQty)
}

func (c LeadTime) String() string { return fmt.Sprintf("lead_time(%s, %gd)", c.SKU, c.Days) }

func (c ServiceLevel) String() string {
	return fmt.Sprintf("service_level(%s, %g)", c.SKU, c.Target)
}

// CapacitySpec is the serialized form of a Capacity constraint
type CapacitySpec struct {
	Warehouse string  `json:"warehouse,omitempty" yaml:"warehouse"`
	MaxUnits  float64 `json:"max_units" yaml:"max_units"`
}

// ConstraintSpec is the JSON/YAML form callers use to describe constraints.
type ConstraintSpec struct {
	Budget           *float64           `json:"budget,omitempty" yaml:"budget"`
	Capacities       []CapacitySpec     `json:"capacities,omitempty" yaml:"capacities"`
	SupplierMinimums map[string]float64 `json:"supplier_minimums,omitempty" yaml:"supplier_minimums"`
	LeadTimes        map[string]float64 `json:"lead_times,omitempty" yaml:"lead_times"`
	ServiceLevels    map[string]float64 `json:"service_levels,omitempty" yaml:"service_levels"`
}

// Constraints expands the spec in a deterministic order.
func (s ConstraintSpec) Constraints() []Constraint {
	var out []Constraint
	if s.Budget != nil {
		out = append(out, Budget{MaxSpend: decimal.NewFromFloat(*s.Budget)})
	}
	for _, c := range s.Capacities {
		out = append(out, Capacity{Warehouse: c.Warehouse, MaxUnits: c.MaxUnits})
	}
	for _, sku := range sortedKeys(s.SupplierMinimums) {
		out = append(out, SupplierMinimum{SKU: sku, MinQty: s.SupplierMinimums[sku]})
	}
	for _, sku := range sortedKeys(s.LeadTimes) {
		out = append(out, LeadTime{SKU: sku, Days: s.LeadTimes[sku]})
	}
	for _, sku := range sortedKeys(s.ServiceLevels) {
		out = append(out, ServiceLevel{SKU: sku, Target: s.ServiceLevels[sku]})
	}
	return out
}

// LoadConstraintSpec decodes a YAML (or JSON, which is valid YAML) constraint file.
func LoadConstraintSpec(r io.Reader) (ConstraintSpec, error) {
	var spec ConstraintSpec
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		if err == io.EOF {
			return spec, nil
		}
		return spec, fmt.Errorf("failed to decode constraints: %w", err)
	}
	return spec, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
