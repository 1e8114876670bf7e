// Package main is the Kestrel server daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kestrelnet/kestrel/pkg/auth"
	"github.com/kestrelnet/kestrel/pkg/network"
	"github.com/kestrelnet/kestrel/pkg/protocol"
	"github.com/kestrelnet/kestrel/pkg/schemafile"
)

var (
	logger logrus.FieldLogger = logrus.StandardLogger()

	flagAddr       string
	flagAdminAddr  string
	flagDBPath     string
	flagSchemaPath string
	flagTickMs     int
	flagLogLevel   string

	rootCmd = &cobra.Command{
		Use:   "kestreld",
		Short: "Kestrel server daemon.",
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Starts the Kestrel server.",
		RunE:  runServe,
	}

	adduserCmd = &cobra.Command{
		Use:   "adduser [username] [password]",
		Short: "Creates a user in the user database.",
		Args:  cobra.ExactArgs(2),
		RunE:  runAddUser,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (trace..error)")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "./data/users.db", "path to the user database")

	serveCmd.Flags().StringVar(&flagAddr, "addr", ":7310", "listen address")
	serveCmd.Flags().StringVar(&flagAdminAddr, "admin-addr", "127.0.0.1:7311", "admin API address")
	serveCmd.Flags().StringVar(&flagSchemaPath, "schemas", "", "optional extra schema file (YAML)")
	serveCmd.Flags().IntVar(&flagTickMs, "tick-ms", 50, "tick period in milliseconds")

	rootCmd.AddCommand(serveCmd, adduserCmd)
}

func setupLogging() {
	level, err := logrus.ParseLevel(flagLogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	formatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	}
	logrus.SetFormatter(formatter)
}

func openStore() (*auth.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(flagDBPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "create data directory failed")
	}
	return auth.OpenSQLiteStore(flagDBPath)
}

func runServe(cmd *cobra.Command, args []string) error {
	setupLogging()

	reg := protocol.NewRegistry()
	if err := registerAppSchemas(reg); err != nil {
		return errors.Wrap(err, "register app schemas failed")
	}
	if flagSchemaPath != "" {
		if err := schemafile.Register(reg, flagSchemaPath); err != nil {
			return errors.Wrap(err, "load schema file failed")
		}
		logger.WithField("path", flagSchemaPath).Info("schema file loaded")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	authn := auth.NewAuthenticator(store, logger)

	var srv *network.Server
	disp := network.NewDispatcher(reg)
	if err := bindAppHandlers(disp, authn, func() *network.Server { return srv }); err != nil {
		return errors.Wrap(err, "bind handlers failed")
	}

	cfg := network.DefaultConfig()
	cfg.Addr = flagAddr
	cfg.TickPeriod = time.Duration(flagTickMs) * time.Millisecond
	cfg.Logger = logger

	srv = network.NewServer(cfg, reg, disp, authn)
	if err := srv.Start(); err != nil {
		return err
	}

	admin := network.NewAdminServer(srv, authn, flagAdminAddr)
	if err := admin.Start(); err != nil {
		return err
	}
	logger.WithField("addr", flagAdminAddr).Info("admin API listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = admin.Stop(ctx)
	srv.Stop()
	return nil
}

func runAddUser(cmd *cobra.Command, args []string) error {
	setupLogging()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.CreateUser(context.Background(), args[0], args[1]); err != nil {
		return err
	}
	logger.WithField("user", args[0]).Info("user created")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalln(err)
	}
}
