// Package config loads the service configuration.
//
// Values are resolved in this order, later sources winning: built-in
// defaults, the YAML file, an optional .env file next to the working
// directory, then LEITURA_* environment variables. Validate runs last.
//
// JWT secrets and the root password belong in the environment, not the
// file. The two JWT secrets must differ and be at least 32 characters.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	ttl := cfg.AccessTTL()
package config
