// Package notify delivers run summaries to the configured channels: a reply
// on the origin service, chat webhooks (Discord, Slack, LINE Notify) and the
// local desktop. Channels are independent; one failing never blocks the rest.
package notify
