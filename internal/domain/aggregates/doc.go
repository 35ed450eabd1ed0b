// Package aggregates defines the write boundaries of the tracking domain.
//
// An aggregate contract names the rows whose invariants must change together:
// an assembly order with its children, a logistics batch with its membership ledger.
// Implementations live in internal/data/aggregates.
package aggregates
