// Package aggregates implements the tracking write boundaries over gorm.
//
// The assembly aggregate creates a parent and its numbered children in one
// transaction; the batch aggregate locks a batch row, edits its membership
// ledger and rewrites total_weight under the same lock.
package aggregates
