// Package suppression implements the per-tenant suppression registry.
//
// A suppression is a standing block on one identifier (email address,
// phone number, chat id or scoped id) on one channel for one organization.
// Entries flow in from provider callbacks, email events, unsubscribe links,
// inbound opt-out keywords and manual action, and are checked before every
// send. Entries never expire.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package suppression
