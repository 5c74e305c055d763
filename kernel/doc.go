// Package kernel adapts an evaluation session to the notebook host's
// command/event protocol. One Kernel serves one notebook session: it owns a
// lazily-created engine session, a package-restore context, and an
// extension loader, and translates each host command into engine calls plus
// a stream of protocol events terminated by exactly one of
// CommandSucceeded, CommandFailed, or CommandCancelled.
//
// Hosts deliver commands through Handle and receive events through the
// Publisher configured at construction. Long-running submissions are
// interruptible via Cancel; interruption surfaces as CommandCancelled,
// never as a raw context error.
package kernel
