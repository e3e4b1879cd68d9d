// Package internal holds opaque refresh secret generation and hashing
// shared by the refresh store, the revocation registry and the builder.
//
// Sub-packages:
//
//   - flows: login, refresh, authenticate and logout orchestration
//   - config: environment and file configuration for authctl
package internal
