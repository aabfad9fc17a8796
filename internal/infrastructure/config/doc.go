// Package config handles loading and validating equipctl configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with EQUIPCTL_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Secrets (JWT secret, broker password, InfluxDB token) should be supplied
// through the environment rather than committed to the YAML file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
