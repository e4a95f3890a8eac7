package config

import "testing"

func TestParse_DefaultsAreValid(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("expected defaults to validate cleanly, got %v", err)
	}
	if cfg.Threads != 8 || cfg.BatchSize != 1000 || cfg.TargetDepth != 4 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.AutoPauseEnabled {
		t.Fatalf("expected auto-pause enabled by default")
	}
}

func TestParse_NoAutoPauseFlagDisablesIt(t *testing.T) {
	cfg, err := Parse([]string{"--no-auto-pause"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AutoPauseEnabled {
		t.Fatalf("expected --no-auto-pause to disable the automatic pause controller")
	}
}

func TestValidate_RejectsZeroThreads(t *testing.T) {
	cfg := &Config{Threads: 0, BatchSize: 1, QueueSize: 1, TargetDepth: 1, MaxRetries: 1, PauseThreshold: 2, ResumeThreshold: 1, EndBlock: -1}
	if err := validate(cfg); err == nil {
		t.Fatalf("expected an error for zero threads")
	}
}

func TestValidate_RejectsPauseThresholdNotGreaterThanResume(t *testing.T) {
	cfg := &Config{Threads: 1, BatchSize: 1, QueueSize: 1, TargetDepth: 1, MaxRetries: 1, PauseThreshold: 10, ResumeThreshold: 10, EndBlock: -1}
	if err := validate(cfg); err == nil {
		t.Fatalf("expected an error when pause-threshold does not exceed resume-threshold")
	}
}

func TestValidate_RejectsStartBlockPastEndBlock(t *testing.T) {
	cfg := &Config{Threads: 1, BatchSize: 1, QueueSize: 1, TargetDepth: 1, MaxRetries: 1, PauseThreshold: 2, ResumeThreshold: 1, StartBlock: 100, EndBlock: 50}
	if err := validate(cfg); err == nil {
		t.Fatalf("expected an error when start-block exceeds end-block")
	}
}

func TestValidate_NegativeEndBlockMeansChainTipAndSkipsRangeCheck(t *testing.T) {
	cfg := &Config{Threads: 1, BatchSize: 1, QueueSize: 1, TargetDepth: 1, MaxRetries: 1, PauseThreshold: 2, ResumeThreshold: 1, StartBlock: 1000000, EndBlock: -1}
	if err := validate(cfg); err != nil {
		t.Fatalf("expected -1 end-block (chain tip) to skip the start/end comparison, got %v", err)
	}
}

func TestLogFilePaths_JoinsLogDir(t *testing.T) {
	cfg := &Config{LogDir: "logs"}
	logFile, errLogFile := cfg.LogFilePaths()
	if logFile != "logs/qdayscanner.log" || errLogFile != "logs/qdayscanner_err.log" {
		t.Fatalf("unexpected log file paths: %s %s", logFile, errLogFile)
	}
}
