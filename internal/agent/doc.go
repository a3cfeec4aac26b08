// Package agent implements the contract-facing half of the console: the
// ownership gate, status reads, the bounded event window and transaction
// dispatch against a single BasicAgent contract.
//
// Every operation validates its addresses and paging arguments before the
// first RPC round trip, and no operation retries on its own. Retrying is an
// operator decision.
package agent
