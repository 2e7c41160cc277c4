// Package adapters provides the built-in adapter implementations and the
// registry that constructs them from manifest specs. Adapters are the only
// components that touch external systems: the command adapter shells out to
// user-supplied scripts and the httpcheck adapter polls an HTTP endpoint.
package adapters
