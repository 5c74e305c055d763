// Package protocol models the notebook host's command and event message
// shapes. The host owns this contract; the types here exist so the kernel
// can decode the commands a host dispatches and encode the events it
// publishes back, with stable JSON field names on both sides.
//
// Commands and events form closed sets: every concrete type implements an
// unexported marker method, and the envelope types dispatch on the
// commandType / eventType discriminator during (un)marshalling. Positions
// throughout the package are zero-based and spans are half-open.
package protocol
