// Package infra groups the adapters behind the core interfaces: the zerolog
// logger, the chat-completion oracle backend, MQTT order delivery, metrics
// sinks, Sentry and the PostgreSQL decision log. Core packages never import
// anything below infra.
package infra
