// Package engine defines the contract between the kernel and the F#
// Interactive service that performs the actual parsing, type checking, and
// evaluation. The kernel never inspects submitted code itself; every
// interesting operation flows through a Session.
//
// # Position Conventions
//
// All positions exchanged with the service follow the compiler's
// conventions: lines are 1-based and columns are 0-based. Callers that
// speak a 0-based protocol (the notebook host does) are responsible for
// remapping.
//
// # Implementations
//
// The engine/fsiproc subpackage provides the production implementation,
// which spawns the fsi service binary and drives it over a framed stdio
// protocol. Tests substitute in-memory fakes.
package engine
