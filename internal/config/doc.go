// Package config loads the webui.toml file used by the webui command.
//
// Every key is optional; absent keys keep their defaults.
//
// # Configuration File Structure
//
//	[server]
//	addr = ":8080"
//	shutdown_timeout = "10s"
//	metrics = true
//	metrics_path = "/metrics"
//	tracing = false
//
//	[session]
//	resume_window = "5m"   # "0s" keeps detached sessions until shutdown
//	reap_interval = "30s"
//	write_timeout = "10s"
//	max_message_size = 65536
//	max_pending_frames = 64
//	shards = 32
//
//	[assets]
//	prefix = "/dnext"
//	script = "./engine/engine.js"   # relative to this file
//	style = "./engine/engine.min.css"
//	watch = true
//
//	[mirror]
//	bucket = "static-assets"
//	region = "eu-central-1"
//	key_prefix = "engine/"
//
//	[log]
//	level = "info"
//	format = "json"
//
// # Usage
//
//	cfg, err := config.LoadFile("webui.toml")
//	if err != nil {
//	    errors.Fprint(os.Stderr, err)
//	    os.Exit(1)
//	}
//	logger := cfg.NewLogger(os.Stderr)
package config
