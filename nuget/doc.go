// Package nuget tracks the package references and restore sources a
// notebook session accumulates, and hands the actual resolution work to a
// host-provided Resolver. The kernel never talks to package feeds itself;
// it only remembers what was asked for, forwards the batch, and records
// what came back.
//
// Rationale: dependency resolution belongs to the host's tooling. Keeping
// this package free of feed protocols lets any host satisfy Resolver with
// whatever machinery it already owns.
package nuget
