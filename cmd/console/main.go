/*
 * Copyright 2025 ThreatLens Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/threatlens/threatlens/pkg/analysis"
	"github.com/threatlens/threatlens/pkg/config"
	"github.com/threatlens/threatlens/pkg/console"
	"github.com/threatlens/threatlens/pkg/logger"
	"github.com/threatlens/threatlens/pkg/scenario"
	"github.com/threatlens/threatlens/pkg/stream"
)

var errFailedToLoadConfig = fmt.Errorf("failed to load config")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/threatlens/console.json", "Path to console config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgLoader := config.NewConfig()

	var cfg console.Config

	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	// The analysis key never lives in the config file.
	cfg.Analysis.APIKey = os.Getenv("THREATLENS_ANALYSIS_API_KEY")

	consoleLogger, err := logger.NewComponent("console", cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	client, err := stream.NewClient(cfg.Stream, consoleLogger.WithComponent("stream"))
	if err != nil {
		return err
	}

	analyzer, err := analysis.NewClient(cfg.Analysis, consoleLogger.WithComponent("analysis"))
	if err != nil {
		return err
	}

	var submitter console.EventSubmitter
	if cfg.SimulateURL != "" {
		submitter = scenario.NewSubmitter(cfg.SimulateURL, consoleLogger.WithComponent("submitter"))
	}

	controller := console.NewController(cfg, client, analyzer, submitter, consoleLogger)
	server := console.NewServer(cfg.ListenAddr, controller, consoleLogger.WithComponent("http"))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return controller.Run(gctx)
	})

	g.Go(func() error {
		return server.Start(gctx)
	})

	consoleLogger.Info().Str("addr", cfg.ListenAddr).Msg("ThreatLens console started")

	return g.Wait()
}
