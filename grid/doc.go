// Package grid provides the shared data model for network topology reduction
// and iterative linear optimal power flow.
//
// # Reading Guide
//
// Start with these files to understand the core model:
//   - network.go: Bus/Line/Link/Generator/StorageUnit containers and graph queries
//   - snapshots.go: the ordered, half-open snapshot window
//   - config.go: the scenario configuration surface and its fail-fast validation
//
// # Architecture
//
// The grid package defines the data model and ambient helpers; the two
// computational stages live in sub-packages:
//   - grid/cluster: the topology reducer (k-means and hierarchical clustering,
//     stub removal, attribute aggregation)
//   - grid/lopf: the iterative feasibility solver (LP model construction,
//     simplex backend, convergence loop)
//   - grid/trace: per-iteration solve trace recording
//
// Runs are reproducible: all randomness flows through PartitionedRNG seeded
// from the scenario seed (rng.go).
package grid
