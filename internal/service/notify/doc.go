// Package notify broadcasts tenant-wide notifications.
package notify
