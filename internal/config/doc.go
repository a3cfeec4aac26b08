// Package config loads the console configuration: a JSON file (AGENT_CONFIG,
// default configs/agent.json), optional .env values and AGENT_* environment
// overrides. The required chain may reference a YAML chain definition file.
package config
