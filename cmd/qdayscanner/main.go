package main

import (
	"fmt"
	"os"
	"time"

	"github.com/krich11/qdayscanner/internal/config"
	"github.com/krich11/qdayscanner/internal/logs"
	"github.com/krich11/qdayscanner/internal/panics"
	"github.com/krich11/qdayscanner/internal/sig"
	"github.com/krich11/qdayscanner/noderpc"
	"github.com/krich11/qdayscanner/pipeline"
	"github.com/krich11/qdayscanner/store"
)

var log = logs.Get(logs.TagSupervisor)

func main() {
	defer panics.HandlePanic(log, nil)

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error parsing command-line arguments: %s\n", err)
		os.Exit(2)
	}

	logFile, errLogFile := cfg.LogFilePaths()
	if err := logs.InitRotators(logFile, errLogFile); err != nil {
		fmt.Fprintf(os.Stderr, "error initializing log rotators: %s\n", err)
		os.Exit(1)
	}
	logs.SetAllLevels(cfg.LogLevel)

	db, err := store.Connect(store.Config{
		Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
		User: cfg.DBUser, Password: cfg.DBPassword,
	})
	if err != nil {
		log.Criticalf("error connecting to database: %s", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Errorf("error closing database: %s", err)
		}
	}()
	if err := db.AutoMigrate(); err != nil {
		log.Criticalf("error migrating schema: %s", err)
		os.Exit(1)
	}

	client, err := noderpc.NewClient(noderpc.Config{
		Host:       cfg.RPCHost,
		Port:       cfg.RPCPort,
		CookiePath: cfg.RPCCookiePath,
		Timeout:    time.Duration(cfg.RPCTimeoutSec) * time.Second,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: time.Second,
	})
	if err != nil {
		log.Criticalf("error constructing node RPC client: %s", err)
		os.Exit(1)
	}

	supervisor, err := pipeline.NewSupervisor(cfg, client, db, os.Stdin)
	if err != nil {
		log.Criticalf("error constructing supervisor: %s", err)
		os.Exit(1)
	}

	interrupt := sig.InterruptListener()
	runErr := supervisor.Run(interrupt)
	if runErr != nil {
		log.Criticalf("scanner halted: %s", runErr)
		os.Exit(1)
	}
	log.Infof("scanner finished cleanly")
}
