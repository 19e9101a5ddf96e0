// Package config handles loading and validating tempsense configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (TEMPSENSE_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - TLS credential paths and store tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Credential file contents are never read here, only their paths
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.ID)
package config
