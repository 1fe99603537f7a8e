// Package config provides centralized configuration management for adminexport.
// It loads settings from several sources, validates them, and resolves the
// file system paths used by a run.
//
// # Configuration Sources
//
// Sources are applied in order of rising precedence:
//
//	1. Default values from Default()
//	2. A YAML file (config.yaml, configs/config.yaml, or ADMINEXPORT_CONFIG)
//	3. Environment variables
//	4. Overrides passed to Load, used for command line flags
//
// # Environment Variables
//
// Every field is read from ADMINEXPORT_<SECTION>_<NAME> and, when that is
// unset, from the bare name:
//
//	LOGIN_ID=operator
//	LOGIN_PW=secret
//	GCP_PROJECT=my-project
//	BQ_DATASET=raw_data
//	BQ_TABLE=goods_csv
//	DOWNLOAD_DIR=./downloads
//	CHROME_PATH=/usr/bin/chromium
//
// # Usage
//
//	cfg, err := config.Load(config.WithOverrides(func(c *config.Config) {
//	    c.Browser.Headless = false
//	}))
//	if err != nil {
//	    return err
//	}
//	paths, err := cfg.GetPaths()
package config
