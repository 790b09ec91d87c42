// Package services implements the driving ports on top of the driven ports.
// This is where the model's invariants live: cascade delete ordering, the
// derived checked flag, settings read-modify-write and the two-phase
// replication lifecycle.
package services
