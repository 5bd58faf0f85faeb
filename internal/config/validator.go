package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers caprouter-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("policy_extension", validatePolicyExtension); err != nil {
		return fmt.Errorf("failed to register policy_extension validator: %w", err)
	}
	return nil
}

// validatePolicyExtension requires a yaml/yml/json extension on the policy
// document path, matching the extensions the registry loader accepts.
func validatePolicyExtension(fl validator.FieldLevel) bool {
	path := fl.Field().String()
	if path == "" {
		return true
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

// Validate validates the Config using struct tags and custom cross-field
// rules. Returns an error if validation fails, with actionable messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateRegistryDirExists(); err != nil {
		return err
	}

	return nil
}

// validateRegistryDirExists ensures the registry directory exists and is
// readable; a misconfigured path should fail fast at startup rather than
// surface as an empty-snapshot "no candidates" error on the first request.
func (c *Config) validateRegistryDirExists() error {
	info, err := os.Stat(c.Registry.Dir)
	if err != nil {
		return fmt.Errorf("registry.dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("registry.dir: %q is not a directory", c.Registry.Dir)
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			msg := formatSingleValidationError(e)
			messages = append(messages, msg)
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "policy_extension":
		return fmt.Sprintf("%s must end in .yaml, .yml, or .json", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
