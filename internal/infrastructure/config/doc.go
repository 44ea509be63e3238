// Package config handles loading and validating authd configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (AUTHD_* pattern)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (JWT secret, broker passwords, InfluxDB tokens)
//     should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - The JWT signing secret must be set before the service will start
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Service.Name)
package config
