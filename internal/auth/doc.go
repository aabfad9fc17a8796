// Package auth registers users, verifies credentials and issues access
// tokens.
//
// A user is split across two tables: users holds the profile (name, email,
// active flag) and user_auth holds the login (username, password hash).
// Passwords are hashed with Argon2id and stored in PHC format. Access
// tokens are HS256 JWTs whose subject is the username.
//
// Users are never deleted; deactivation blocks login and new reservations.
package auth
