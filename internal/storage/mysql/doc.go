// Package mysql persists the operator dispatch journal. A file-backed
// implementation serves local runs; the MySQL implementation applies the
// embedded schema migrations on startup.
//
// The journal is an audit trail of dispatch attempts. It is never read back
// as action history: events are always re-fetched from the chain.
package mysql
