// Package configs manages tiaki's settings and configuration file.
//
// # Settings
//
// TiakiSettings is resolved at startup from the environment:
//   - DataPath: $TIAKI_DATA_DIR, else $XDG_DATA_HOME/tiaki, else ~/.local/share/tiaki.
//     Holds the key store, the sealed key vault and the audit log.
//   - ConfigPath: os.UserConfigDir()/tiaki. Holds config.toml.
//
// The --data-dir flag calls UseDataDir, which points both at one directory.
//
// # Configuration
//
// config.toml is TOML:
//
//	[store]
//	backend = "file"        # file | badger | memory
//	path = ""               # optional override
//
//	[keys]
//	rsa_bits = 4096
//	oaep_hash = "sha1"      # channel-secret wrapping; sha1 for interop
//
//	[device]
//	installation_id = "..." # generated once, recorded in the audit log
//
// A missing file means DefaultConfig. EnsureConfig writes the file the first
// time an installation id is needed.
package configs
