// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ClusterCockpit/xml2pg-ingest/internal/config"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/finalize"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/pipeline"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/store"
	"github.com/ClusterCockpit/xml2pg-ingest/pkg/log"
	"github.com/google/gops/agent"
	"github.com/joho/godotenv"
)

func main() {
	var flagConfigFile, flagXMLPath, flagLogLevel string
	var flagNoCopy, flagInitDB, flagGops bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Load configuration from `config.json`")
	flag.StringVar(&flagXMLPath, "xml", "", "Overwrite the config file's xml_path with `path`")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "One of debug, info, notice, warn, err, crit")
	flag.BoolVar(&flagNoCopy, "no-copy", false, "Run the streaming phase and log progress, but skip finalize() at the end")
	flag.BoolVar(&flagInitDB, "init-db", false, "Run only finalize() over whatever staging contents already exist, then exit")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	log.SetLogLevel(flagLogLevel)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing '.env' file failed: %s", err.Error())
	}

	cfg, err := config.Init(flagConfigFile)
	if err != nil {
		log.Fatal(err)
	}
	if flagXMLPath != "" {
		cfg.XMLPath = flagXMLPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fin := cfg.FinalizerConfig()

	if flagInitDB {
		runFinalize(ctx, cfg.DatabaseURL, fin)
		return
	}

	snapshot, err := pipeline.Run(ctx, cfg.PipelineConfig())
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	log.Infof(
		"pipeline finished: groups=%d/%d/%d events=%d/%d/%d batches=%d/%d skipped=%d copy_errors=%d",
		snapshot.GroupsParsed, snapshot.GroupsEnqueued, snapshot.GroupsCopied,
		snapshot.EventsParsed, snapshot.EventsEnqueued, snapshot.EventsCopied,
		snapshot.BatchesEnqueued, snapshot.BatchesCopied,
		snapshot.SkippedRecords, snapshot.CopyErrors,
	)

	clean := snapshot.GroupsParsed == snapshot.GroupsCopied && snapshot.EventsParsed == snapshot.EventsCopied
	if !clean {
		log.Error("pipeline: run was not clean, leaving staging tables intact for diagnosis; skipping finalize()")
		os.Exit(1)
	}

	if flagNoCopy {
		log.Info("pipeline: -no-copy set, skipping finalize()")
		return
	}

	runFinalize(ctx, cfg.DatabaseURL, fin)
}

func runFinalize(ctx context.Context, databaseURL string, fin finalize.Finalizer) {
	db, err := store.OpenFinalizer(databaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := fin.Run(ctx, db); err != nil {
		log.Fatalf("finalize: %v", err)
	}
}
