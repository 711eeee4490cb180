// Package core holds the credential domain: record and key types, the
// scope registry, store and adapter contracts, and the lifecycle manager
// that orchestrates authorization, exchange, and skew-aware refresh.
// Provider adapters and store backends depend on core; core depends on
// neither.
package core
