package datalayer

// Capability names a feature a caller can probe for before dispatching
// work to the layer.
type Capability int

const (
	// CapTransact: operations can be grouped in RunInTransaction.
	CapTransact Capability = iota
	// CapUpsert: Upsert resolves create-or-update by key attributes.
	CapUpsert
	// CapCompositePrimaryKey: resources may declare multi-attribute keys.
	CapCompositePrimaryKey
	// CapExpressionCalculation: computed expressions inside queries.
	// Not supported; filters evaluate against stored attributes only.
	CapExpressionCalculation
	// CapAggregateCount: RunAggregate supports KindCount.
	CapAggregateCount
)

func (c Capability) String() string {
	switch c {
	case CapTransact:
		return "transact"
	case CapUpsert:
		return "upsert"
	case CapCompositePrimaryKey:
		return "composite_primary_key"
	case CapExpressionCalculation:
		return "expression_calculation"
	case CapAggregateCount:
		return "aggregate_count"
	default:
		return "unknown"
	}
}

// Can reports whether the layer supports a capability. The answers are
// static: they describe the implementation, not the current engine.
func (dl *DataLayer) Can(c Capability) bool {
	switch c {
	case CapTransact, CapUpsert, CapCompositePrimaryKey, CapAggregateCount:
		return true
	default:
		return false
	}
}
