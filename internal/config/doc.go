// Package config loads trialstream settings.
//
// Settings come from three layers, later ones winning: built-in defaults,
// an optional trialstream.json or trialstream.toml file, and TRIALSTREAM_*
// environment variables. The merged result is validated before use.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "address": ":8765",
//	    "route": "/trials",
//	    "heartbeatInterval": "20s",
//	    "readTimeout": "60s"
//	  },
//	  "storage": {
//	    "dataDir": "data",
//	    "backend": "s3",
//	    "s3": {"bucket": "lab-rigs", "prefix": "rig-3", "region": "eu-west-1"}
//	  },
//	  "redis": {"addr": "localhost:6379", "stream": "trialstream:records"},
//	  "log": {"level": "debug", "format": "json", "file": "logs/trialstream.log"},
//	  "metrics": {"enabled": true, "path": "/metrics"}
//	}
//
// The TOML form uses snake_case keys ([server] heartbeat_interval = "20s").
//
// # Usage
//
//	cfg, err := config.Load(config.Find("."))
//	if err != nil {
//	    errors.PrintError(err)
//	    os.Exit(1)
//	}
//	srv, err := server.New(cfg.ServerConfig(), recorder)
package config
