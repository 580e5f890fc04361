package config

import (
	"fmt"

	"github.com/kilianp07/busalloc/infra/mqtt"
)

const DefaultAckTimeoutSeconds = 5

// MQTTConfig enables forwarding of engine events and reassignment orders.
// Events limits the mirrored event kinds; empty mirrors all of them.
type MQTTConfig struct {
	Enabled           bool        `json:"enabled"`
	AckTimeoutSeconds int         `json:"ack_timeout_seconds"`
	Events            []string    `json:"events"`
	Client            mqtt.Config `json:"client"`
}

func (c MQTTConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Client.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	if c.Client.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	return nil
}
