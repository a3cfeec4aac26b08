// Package web3 houses the chain connectivity layer of the console: the
// read-only ChainEndpoint contract, strict address validation, and the YAML
// chain definitions that describe the network an operator's wallet must be
// aligned to. Concrete endpoints live in subpackages (see ethereum).
package web3
