// Package credentials resolves the per-organization provider secrets used
// by the channel senders.
//
// Integration tokens are stored Fernet-encrypted. Extra keys ending in
// "_encrypted" are decrypted into the same key without the suffix. For
// Google Calendar the access token is refreshed through the OAuth token
// endpoint when it is within a minute of expiry, and the new token is
// persisted before it is returned.
package credentials
