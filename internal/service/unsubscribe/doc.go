// Package unsubscribe signs and verifies the time-limited tokens embedded in
// email unsubscribe links, and applies the opt-out they carry.
//
// Token format:
//
//	base64url(org|email|job|recipient) "." unix-seconds "." hex(hmac-sha256)
//
// The MAC covers the first two segments. Tokens issued before jobs existed
// carry only org|email and are still honored.
package unsubscribe
