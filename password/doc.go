// Package password hashes and verifies credentials.
//
// # Output format
//
// Argon2id hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Bcrypt hashes use the standard $2a$/$2b$ modular crypt format.
//
// [Hasher] produces hashes in one configured scheme and verifies either.
// [Hasher.NeedsUpgrade] reports true for hashes in the other scheme or with
// weaker parameters, so the caller can re-hash after a successful login.
//
// This package never stores, logs or returns plaintext passwords.
package password
