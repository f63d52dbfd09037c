// Package credentials is the reference account store and credential validator
// behind authgate.Gate. Accounts hold an Argon2id password hash and a role set;
// they live in memory, SQLite or PostgreSQL.
package credentials
