package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct-tag constraints plus a handful of cross-field
// rules the tag language can't express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if len(cfg.Shares) == 0 {
		return fmt.Errorf("shares: at least one share must be configured")
	}

	seen := make(map[string]bool)
	for i, share := range cfg.Shares {
		if seen[share.Path] {
			return fmt.Errorf("shares[%d]: duplicate share path %q", i, share.Path)
		}
		seen[share.Path] = true
	}

	if cfg.Backend.Type == "badger" && cfg.Backend.Badger.Dir == "" {
		return fmt.Errorf("backend.badger.dir must be set when backend.type is badger")
	}
	if cfg.Backend.Type == "s3" && cfg.Backend.S3.Bucket == "" {
		return fmt.Errorf("backend.s3.bucket must be set when backend.type is s3")
	}

	return nil
}

func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on %q tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
