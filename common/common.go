// Package common holds process-wide identity and logging setup shared by all binaries.
package common

// PackageName is used as the metrics namespace and the default service tag in logs.
const PackageName = "attested_trace_backend"

// Version is set at build time via -ldflags.
var Version = "dev"
