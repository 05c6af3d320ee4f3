// Package password hashes and verifies account secrets.
//
// # Output format
//
// New hashes are Argon2id PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Legacy bcrypt hashes ($2a$, $2b$, $2y$) imported from earlier deployments verify
// through [Verifier] and report [Verifier.NeedsRehash] so the caller can upgrade them.
//
// # Credentials
//
// Accounts carry a [Credential]: either [PasswordCredential] or [FederatedOnly]. The
// zero value is invalid. [Verifier.Verify] never succeeds for a FederatedOnly or zero
// credential, so a missing hash can not be mistaken for a match.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Log plaintext passwords or hashes.
package password
