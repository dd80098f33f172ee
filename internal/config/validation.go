package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules performs validation beyond what struct tags express.
func validateCustomRules(cfg *Config) error {
	seen := make(map[string]bool)
	for i, class := range cfg.Shard.StorageClasses {
		if seen[class] {
			return fmt.Errorf("shard.storage_classes[%d]: duplicate storage class %q", i, class)
		}
		seen[class] = true
	}

	if cfg.Shard.MaxMTU <= cfg.Shard.MinMTU {
		return fmt.Errorf("shard: max_mtu must be greater than min_mtu")
	}

	return nil
}

func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
