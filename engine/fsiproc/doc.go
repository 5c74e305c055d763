// Package fsiproc implements engine.Session by spawning the fsi compiler
// service as a child process and driving it over a framed stdio protocol:
// one JSON packet per line on stdin/stdout.
//
// Requests carry a monotonically increasing sequence number; the service
// answers each with a response packet bearing the same number, so calls can
// overlap. Interleaved console output produced while an evaluation runs
// arrives as event packets and is surfaced through the registered output
// handler. Cancellation is cooperative: cancelling an Eval's context sends
// a cancel packet for the in-flight sequence and waits for the service to
// confirm the interrupt, keeping the session usable afterwards.
package fsiproc
