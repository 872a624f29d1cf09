// Package remote defines the capability contracts the pipeline consumes
// (remote procedure invocation, credentials, resolved configuration values)
// and provides the HTTP workload-agent implementation of the invoker.
//
// The pipeline core only ever sees the interfaces: phase bodies run
// installation and workload procedures through an Invoker, and the collector
// samples counters through the same capability. How an agent executes a
// procedure is its own business.
package remote
