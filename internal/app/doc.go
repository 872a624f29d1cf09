// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the primary execution lifecycle: loading the
// benchmark plan, wiring the run-state store and tracker, building the phase
// bodies, and driving the pipeline. It stays decoupled from any specific
// entrypoint like a CLI.
package app
