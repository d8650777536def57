// Package config handles loading and validating holter node configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - WiFi passwords and TLS private keys should be set via environment variables
//     (HOLTER_WIFI_PASSWORD, HOLTER_MQTT_KEY_PEM) or file paths with 0600 permissions
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/holter.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.ThingName)
package config
