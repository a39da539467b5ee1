// Package config loads and validates the provisioning configuration.
//
// # Sources
//
// A ProvisioningConfig is assembled from four layers, lowest precedence
// first:
//
//  1. built-in defaults (Default, setDefaults)
//  2. a configuration file, either CUE or anything viper reads
//  3. the environment, with the HOSTKIT_ prefix, after dotenv files are loaded
//  4. command-line flags registered with RegisterFlags
//
// CUE files are unified with the closed #ProvisioningConfig schema held by
// the SchemaRegistry, so misspelled keys and out-of-range values are
// reported with their file position before any merging happens.
//
// # Validation
//
// After merging, values that follow the application name (user,
// directories, database names) are derived, then the whole struct is
// checked with validator tags and once more against the CUE schema. All
// problems are returned together as ValidationErrors.
//
// # Usage Example
//
//	loader := config.NewLoader(logger)
//	cfg, err := loader.Load(ctx, config.LoadOptions{File: "hostkit.cue"})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.DatabaseURL())
//
// # Watching
//
// Watcher reports settled changes to the configuration file and policy
// directory; the plan command uses it to re-plan on save.
package config
