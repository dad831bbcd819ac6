// Package config loads the portgate application configuration from HCL.
//
// The file is optional. Every setting has a default derived from the brand
// package, and a missing file yields Default(). Example:
//
//	schema_version = "1.0"
//
//	state {
//	  backend = "sqlite"
//	  path    = "/var/lib/portgate/tunnels.db"
//	}
//
//	haproxy {
//	  config_path     = "/etc/haproxy/haproxy.cfg"
//	  service         = "haproxy"
//	  max_backups     = 10
//	  timeout_connect = "5s"
//	}
//
//	log {
//	  level = "debug"
//	}
//
//	history {
//	  retention_days = 30
//	}
package config
