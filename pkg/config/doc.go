// Package config loads dosync settings.
//
// Settings are layered with koanf, later layers winning:
//
//  1. the embedded defaults (embedded/defaults.toml)
//  2. the user settings file, TOML or YAML
//     ($XDG_CONFIG_HOME/dosync/config.toml unless --settings names one)
//  3. DOSYNC_<SECTION>_<KEY> environment variables
//  4. command line flags the user actually set
//
// Settings are distinct from the host file, which describes hosts and the
// files synchronized with them (see package hostfile).
package config
