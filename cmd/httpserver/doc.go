// Package main (cmd/httpserver) serves the credential registry client as a local JSON API.
//
// The server owns one wallet session: a go-ethereum keystore account attached to a
// JSON-RPC node, or an in-memory registry with --dry-run. Connect through
// POST /api/session/connect, then call the institution, document and credential
// endpoints described in the httpserver package.
//
// Pinning backends are configured with repeatable --pinner URIs. Pinata credentials are
// taken from the URI, from --pinata-* flags or from a Vault KV v2 secret (--vault-addr).
//
// Example usage:
//
//	httpserver --rpc-addr https://sepolia.example.org --keystore ~/.ethereum/keystore \
//	  --pinner pinata://api.pinata.cloud --pinata-jwt $PINATA_JWT
//
//	httpserver --dry-run --pinner ipfs://127.0.0.1:5001
package main
