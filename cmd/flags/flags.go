package flags

import (
	"log/slog"
	"time"

	"github.com/genui/attested-trace-backend/common"
	"github.com/genui/attested-trace-backend/httpserver"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *httpserver.HTTPServerConfig {
	listenAddr := cCtx.String(ListenAddrFlag.Name)
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var AppIDFlag = &cli.StringFlag{
	Name:     "app-id",
	Required: true,
	Usage:    "App ID the attestations must belong to (team ID '.' bundle ID)",
}

var ProductionFlag = &cli.BoolFlag{
	Name:  "production",
	Value: true,
	Usage: "require production App Attest environment (disable for sandbox builds)",
}

var TrustAnchorFlag = &cli.StringFlag{
	Name:  "trust-anchor",
	Usage: "path to the attestation root certificate (PEM or DER), defaults to the Apple App Attest root",
}

var MasterSecretFlag = &cli.StringFlag{
	Name:    "master-secret",
	Usage:   "master secret as hex, or a vault://address/mount/path reference",
	EnvVars: []string{"MASTER_SECRET"},
}

var ChallengeTTLFlag = &cli.DurationFlag{
	Name:  "challenge-ttl",
	Value: 5 * time.Minute,
	Usage: "how long an issued challenge stays valid",
}

var StorageURIFlag = &cli.StringFlag{
	Name:  "storage-uri",
	Value: "file:///var/lib/attested-trace-backend",
	Usage: "storage backend location, s3://bucket?region=... or file:///path",
}

var LogPrefixFlag = &cli.StringFlag{
	Name:  "log-prefix",
	Value: "logs",
	Usage: "key prefix for canonical trace JSON objects",
}

var SharePrefixFlag = &cli.StringFlag{
	Name:  "share-prefix",
	Value: "share",
	Usage: "key prefix for shareable HTML objects",
}

var MaxBodyBytesFlag = &cli.Int64Flag{
	Name:  "max-body-bytes",
	Value: 1 << 20,
	Usage: "maximum accepted request body size in bytes",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "attested-trace-backend",
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
