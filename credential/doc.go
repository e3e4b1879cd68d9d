// Package credential defines the user record, its lockout history and the
// Store contract the authentication engine persists them through.
//
// # Architecture boundaries
//
// This package owns persistence of users only. Lockout decisions live in
// package lockout; the store just applies the transition it is handed,
// atomically per user.
//
// Implementations:
//
//   - [Memory]: in-process, for tests and single-node development.
//   - credential/postgres: PostgreSQL via pgx, row-locked lock-state updates.
package credential
