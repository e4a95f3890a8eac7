// Package config parses the scanner's CLI flags, following the
// jessevdk/go-flags + package-level ActiveConfig() singleton pattern used by
// kasparovd's config loader. The connection and most tuning flags also
// accept the environment variable named in their env tag, following the
// env-var-first surface of the original Python scanner's utils/config.py;
// start-block, end-block, reset, no-auto-pause, scanner-id and log-dir are
// flag-only.
package config

import (
	"fmt"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultLogFilename    = "qdayscanner.log"
	defaultErrLogFilename = "qdayscanner_err.log"
)

// Config holds every recognized option from the external-interfaces surface:
// node RPC connection, database connection, pipeline tuning, and operator
// behavior.
type Config struct {
	// Node RPC
	RPCHost       string `long:"rpc-host" env:"BITCOIN_RPC_HOST" default:"127.0.0.1" description:"Bitcoin node RPC host"`
	RPCPort       int    `long:"rpc-port" env:"BITCOIN_RPC_PORT" default:"8332" description:"Bitcoin node RPC port"`
	RPCCookiePath string `long:"rpc-cookie" env:"BITCOIN_RPC_COOKIE_PATH" description:"path to the node's .cookie auth file"`
	RPCTimeoutSec int    `long:"rpc-timeout" env:"CONNECTION_TIMEOUT" default:"30" description:"per-call RPC timeout in seconds"`

	// Database
	DBHost     string `long:"db-host" env:"DB_HOST" default:"127.0.0.1" description:"database host"`
	DBPort     int    `long:"db-port" env:"DB_PORT" default:"5432" description:"database port"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"qdayscanner" description:"database name"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"qdayscanner" description:"database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" description:"database password"`

	// Pipeline tuning.
	Threads           int  `long:"threads" env:"SCAN_THREADS" default:"8" description:"worker count"`
	BatchSize         int  `long:"batch-size" env:"SCAN_BATCH_SIZE" default:"1000" description:"writer flush threshold"`
	QueueSize         int  `long:"queue-size" env:"SCAN_QUEUE_SIZE" default:"1000000" description:"write-queue capacity"`
	TargetDepth       int  `long:"target-depth" env:"SCAN_TARGET_DEPTH" default:"4" description:"blocks per worker queue"`
	RPCBatchSize      int  `long:"rpc-batch-size" env:"SCAN_RPC_BATCH_SIZE" default:"25" description:"max txs per batched RPC call"`
	BatchRPC          bool `long:"batch-rpc" env:"SCAN_BATCH_RPC" description:"enable batched tx fetching"`
	QuickScan         bool `long:"quick-scan" env:"SCAN_QUICK_SCAN" description:"enable block-level P2PK quick scan"`
	AutoPauseEnabled  bool `long:"auto-pause" env:"SCAN_AUTO_PAUSE" description:"enable automatic backpressure pause controller" default-mask:"true"`
	NoAutoPause       bool `long:"no-auto-pause" description:"disable automatic backpressure pause controller"`
	PauseThreshold    int  `long:"pause-threshold" env:"SCAN_PAUSE_THRESHOLD" default:"50000" description:"write-queue depth that triggers an automatic pause"`
	ResumeThreshold   int  `long:"resume-threshold" env:"SCAN_RESUME_THRESHOLD" default:"10000" description:"write-queue depth that clears an automatic pause"`
	StartBlock        int  `long:"start-block" description:"explicit start height, overrides stored progress"`
	EndBlock          int  `long:"end-block" description:"explicit end height, default chain tip" default:"-1"`
	Reset             bool `long:"reset" description:"ignore stored progress and rescan from start-block"`
	MaxRetries        int  `long:"max-retries" env:"MAX_RETRIES" default:"3" description:"address-upsert attempts before a fatal halt"`
	ProgressInterval  int  `long:"progress-interval" env:"PROGRESS_UPDATE_INTERVAL" default:"100" description:"blocks between progress commits"`

	ScannerID string `long:"scanner-id" default:"hydra" description:"scanner identity used as the ScanProgress key"`
	LogLevel  string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"trace|debug|info|warn|error|critical"`
	LogDir    string `long:"log-dir" default:"logs" description:"directory for rotating log files"`
}

var active *Config

// ActiveConfig returns the parsed configuration singleton. Parse must have
// been called first.
func ActiveConfig() *Config {
	return active
}

// Parse parses CLI args (falling back to environment variables, then the
// struct defaults above) and validates cross-field invariants.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	if cfg.NoAutoPause {
		cfg.AutoPauseEnabled = false
	} else {
		cfg.AutoPauseEnabled = true
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	active = cfg
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Threads < 1 {
		return fmt.Errorf("threads must be >= 1, got %d", cfg.Threads)
	}
	if cfg.BatchSize < 1 {
		return fmt.Errorf("batch-size must be >= 1, got %d", cfg.BatchSize)
	}
	if cfg.QueueSize < 1 {
		return fmt.Errorf("queue-size must be >= 1, got %d", cfg.QueueSize)
	}
	if cfg.TargetDepth < 1 {
		return fmt.Errorf("target-depth must be >= 1, got %d", cfg.TargetDepth)
	}
	if cfg.PauseThreshold <= cfg.ResumeThreshold {
		return fmt.Errorf("pause-threshold (%d) must be greater than resume-threshold (%d)", cfg.PauseThreshold, cfg.ResumeThreshold)
	}
	if cfg.MaxRetries < 1 {
		return fmt.Errorf("max-retries must be >= 1, got %d", cfg.MaxRetries)
	}
	if cfg.EndBlock >= 0 && cfg.StartBlock > cfg.EndBlock {
		return fmt.Errorf("start-block (%d) must not exceed end-block (%d)", cfg.StartBlock, cfg.EndBlock)
	}
	return nil
}

// LogFilePaths returns the primary and error log file paths under LogDir.
func (c *Config) LogFilePaths() (logFile, errLogFile string) {
	return c.LogDir + "/" + defaultLogFilename, c.LogDir + "/" + defaultErrLogFilename
}
