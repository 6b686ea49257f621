// Package wallet houses the transfer capability consumed by the payment
// agent. It defines the chain-agnostic Adapter interface, YAML-backed network
// definitions, and concrete implementations under subpackages such as
// wallet/ethereum for EVM compatible networks. Adapters execute a single
// transfer per call and never retry; retry semantics live with the callers.
package wallet
