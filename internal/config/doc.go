// Package config defines configuration structures for the scanfetch CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (SCANFETCH_ prefix)
//   - YAML configuration file
//
// Flags override the environment, which overrides the file.
//
// # Structure
//
//	type Config struct {
//	    URI         string
//	    OutDir      string
//	    Talkgroups  []string
//	    PageSize    int
//	    RequestRate float64
//	    Progress    bool
//	    Verbose     bool
//	    Connection  ConnectionConfig
//	}
//
//	type ConnectionConfig struct {
//	    HandshakeTimeout time.Duration
//	    ReadLimit        int64
//	}
package config
