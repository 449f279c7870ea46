// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/cfgstruct"
	"storj.io/common/fpath"
	"storj.io/common/process"

	"storj.io/llmtrace/ratelimit"
	"storj.io/llmtrace/traceauth"
	"storj.io/llmtrace/tracedb"
	"storj.io/llmtrace/tracer"
	"storj.io/llmtrace/web"
)

var (
	rootCmd = &cobra.Command{
		Use:   "llmtrace",
		Short: "LLM trace collection server",
	}
	setupCmd = &cobra.Command{
		Use:         "setup",
		Short:       "Create config files",
		RunE:        cmdSetup,
		Annotations: map[string]string{"type": "setup"},
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the trace collection server",
		RunE:  cmdRun,
	}
	confDir string

	runCfg   Config
	setupCfg Config
)

// Config is the full server configuration.
type Config struct {
	Web       web.Config
	Database  tracedb.Config
	Auth      traceauth.Config
	RateLimit ratelimit.Config

	ProvisionTables bool `help:"create tables and indexes on startup, for local development" default:"false"`
}

func cmdSetup(cmd *cobra.Command, args []string) (err error) {
	setupDir, err := filepath.Abs(confDir)
	if err != nil {
		return err
	}

	valid, _ := fpath.IsValidSetupDir(setupDir)
	if !valid {
		return fmt.Errorf("llmtrace configuration already exists (%v)", setupDir)
	}

	err = os.MkdirAll(setupDir, 0700)
	if err != nil {
		return err
	}

	return process.SaveConfig(cmd, filepath.Join(setupDir, "config.yaml"))
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	db, err := tracedb.Open(ctx, log.Named("db"), runCfg.Database)
	if err != nil {
		return errs.New("Error connecting to trace database: %+v", err)
	}
	defer func() {
		err = errs.Combine(err, db.Close())
	}()

	if runCfg.ProvisionTables {
		if err := db.EnsureTables(ctx); err != nil {
			return errs.New("Error provisioning tables: %+v", err)
		}
	}

	service := tracer.NewService(log.Named("tracer"), db)
	auth := traceauth.New(runCfg.Auth)
	limiter := ratelimit.NewLimiter(runCfg.RateLimit)

	listener, err := net.Listen("tcp", runCfg.Web.Address)
	if err != nil {
		return errs.New("Error binding %s: %+v", runCfg.Web.Address, err)
	}

	server := web.NewServer(log.Named("web"), runCfg.Web, service, auth, limiter, listener)
	return server.Run(ctx)
}

func init() {
	defaultConfDir := fpath.ApplicationDir("storj", "llmtrace")
	cfgstruct.SetupFlag(zap.L(), rootCmd, &confDir, "config-dir", defaultConfDir, "main directory for llmtrace configuration")
	defaults := cfgstruct.DefaultsFlag(rootCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	process.Bind(runCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(setupCmd, &setupCfg, defaults, cfgstruct.ConfDir(confDir), cfgstruct.SetupMode())
}

func main() {
	// local development reads credentials and endpoints from .env
	_ = godotenv.Load()

	logger, _, _ := process.NewLogger("llmtrace")
	zap.ReplaceGlobals(logger)

	process.Exec(rootCmd)
}
