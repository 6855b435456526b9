package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

var validate = validator.New()

// Process fills spec from the environment using envconfig struct tags
// (`envconfig:"NAME" default:"x" required:"true"`) and then checks its
// `validate` tags, e.g. `validate:"port"` on a uint16 port.
func Process(spec any) error {
	if err := envconfig.Process("", spec); err != nil {
		return err
	}
	if err := validate.Struct(spec); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ListenAddr is the all-interfaces address for port.
func ListenAddr(port uint16) string {
	return fmt.Sprintf(":%d", port)
}
