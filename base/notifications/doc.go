// Package notifications implements a small in-memory event/notification
// store used to surface operator-facing events (health failures, bind
// conflicts, settings problems) to IPC clients.
//
// Unlike the richer database-backed notification system this package was
// adapted from, there is no persistence and no config subscription here:
// notifications live only as long as the process and are broadcast to
// whoever is listening at the time.
package notifications
