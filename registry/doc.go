// Package registry provides an interface to interact with the on-chain SIRCMS credential
// registry contract.
//
// The package implements the interfaces.CredentialRegistry interface on top of go-ethereum's
// bind.BoundContract, allowing applications to read and write the registry deployed on an
// Ethereum-compatible chain without generated bindings.
//
// Key features include:
//
//   - Institution enumeration and lookup
//   - Credential search and document hash verification
//   - Institution registration, credential issuance and revocation
//   - Revert reason recovery and error classification
//   - Event decoding from transaction receipts
//
// # Bindings
//
// A Binding couples the contract address, the ABI-bound registry handle and the signer of
// one account on one network. Bindings are immutable and are produced by a Builder, which
// checks the provider's network before anything else:
//
//	builder := registry.NewBuilder(provider, deployment, registry.NewRegistryFactory(backend), log)
//	binding, err := builder.Build(ctx, account)
//	if errors.Is(err, interfaces.ErrWrongNetwork) {
//	    // ask the user to switch networks
//	}
//
// RebuildIfStale reuses a binding that is already bound to the requested account on the
// deployment network.
//
// # Errors
//
// ClassifyError maps node, signer and contract errors onto the client taxonomy defined in
// the interfaces package: declined signing requests become ErrUserRejected, contract
// rejections become *interfaces.RevertError and connectivity failures become ErrNetwork.
//
// # Testing
//
// MockRegistryClient is an in-memory registry enforcing the contract's rules, and
// MockRegistry is a testify mock for interaction-level tests.
package registry
