// Package password hashes and verifies passwords with Argon2id.
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification uses the parameters stored in the hash, so hashes made with
// older settings keep working; [Argon2.NeedsUpgrade] tells the caller when to
// re-hash. [Argon2.VerifyDummy] spends the cost of one verification for
// accounts that do not exist.
package password
