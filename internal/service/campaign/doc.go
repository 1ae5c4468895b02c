// Package campaign launches campaigns and reports their rollups.
//
// Email campaigns are sent through one email job. Other channels fan out
// into one outbound message and one campaign recipient per contact. The
// counters on a campaign are maintained by the email job engine and the
// reconciler; this package only starts the send.
//
// Repository implementations live in repository/postgres/.
package campaign
