// Package wallet models the operator's externally supplied signing
// capability. Keys never enter this process: a Capability forwards account,
// chain and transaction requests to a wallet (EIP-1193 method names) and
// reports failures as typed errors instead of numeric provider codes.
//
// A Session is produced only by Negotiate and is immutable; the Guard aligns
// the wallet with the required chain and re-derives a fresh Session once it
// succeeds.
package wallet
