// Package api serves the agent console's HTTP interface: status, ownership
// and event queries against the configured chain, the advisory trigger
// endpoint and the wallet network descriptor.
package api
