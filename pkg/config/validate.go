package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct validation tags.
//
// Cross-field rules the tags cannot express are checked explicitly. The
// authentication mode string itself is validated by auth.ParseAuthMode,
// which owns the recognized-identifier set.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				return fmt.Errorf("invalid value for %s: failed %q constraint", fe.Namespace(), fe.Tag())
			}
		}
		return err
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		return fmt.Errorf("metrics.port is required when metrics are enabled")
	}

	return nil
}
