// Package agent contains the payment agent responsible for driving the
// pay-to-access protocol: probe a resource, decode the 402 challenge,
// evaluate spend policy, execute the transfer, and resubmit proof for
// verification. The agent itself never retries; retry semantics belong to
// the scheduling layer.
package agent
