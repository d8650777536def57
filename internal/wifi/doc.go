// Package wifi brings the node's network link up before anything talks to
// the broker.
//
// A Link joins a network and reports whether it is usable. NmcliLink drives
// NetworkManager; StaticLink covers wired or host-managed networking where
// the node only needs to wait for an interface to come up.
//
// Connect retries forever with a fixed delay. A node without a network has
// nothing else useful to do, so only context cancellation stops it.
package wifi
