package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// LogConfig sets the minimum level of application logs.
type LogConfig struct {
	Level string `json:"level"`
}

func (c LogConfig) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("unknown level %q", c.Level)
	}
	return nil
}
