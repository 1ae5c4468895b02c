// Package alerts records operator alerts raised by the send pipelines and
// optionally mails them to an operator address through SES.
package alerts
