// Package events defines the events the allocation engine publishes on the
// event bus. Listeners (metrics collector, MQTT forwarder, UIs) subscribe to
// react to state changes instead of polling.
//
// Every event reports a Kind used as routing key, e.g. the MQTT topic suffix.
package events
