// Package auth stores login sessions for the third-party sites the link
// fetchers download from. Sessions live in the system keychain when one is
// available, otherwise in an encrypted file, and can be supplied read-only
// through the environment.
package auth
