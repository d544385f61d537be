// clinisync keeps a clinic's local patient records in sync with the
// central backend across unreliable connectivity.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/clinicaid/clinisync/internal/auth"
	"github.com/clinicaid/clinisync/internal/config"
	"github.com/clinicaid/clinisync/internal/event"
	"github.com/clinicaid/clinisync/internal/netmon"
	"github.com/clinicaid/clinisync/internal/remote"
	"github.com/clinicaid/clinisync/internal/store"
	"github.com/clinicaid/clinisync/internal/syncer"
)

var (
	cfgViper *viper.Viper
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "clinisync",
	Short: "Offline-first record sync for clinic workstations",
	Long: `clinisync maintains a local, durable copy of the clinic's patient
records and reconciles it with the central backend whenever the network
allows. Every write lands locally first; connectivity loss never blocks
clinical work.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgViper)
		return err
	},
}

func init() {
	cfgViper = config.New()

	flags := rootCmd.PersistentFlags()
	flags.String("backend-url", "", "Backend base URL (default http://localhost:3001)")
	flags.String("data-dir", "", "Directory for local databases and logs")
	_ = cfgViper.BindPFlag("backend_url", flags.Lookup("backend-url"))
	_ = cfgViper.BindPFlag("data_dir", flags.Lookup("data-dir"))

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(resyncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(certificateCmd)
}

// app bundles the wired subsystem for a command's lifetime.
type app struct {
	cfg     *config.Config
	store   *store.Store
	creds   *auth.CredentialStore
	client  *remote.Client
	bus     *event.Bus
	engine  *syncer.Engine
	auth    *auth.Service
	monitor *netmon.Monitor
	logger  *log.Logger
}

// newApp opens the local stores and wires the sync engine. logWriter
// receives all subsystem logs; pass nil for stderr.
func newApp(cfg *config.Config, logWriter io.Writer) (*app, error) {
	if logWriter == nil {
		logWriter = os.Stderr
	}
	newLogger := func(prefix string) *log.Logger {
		return log.New(logWriter, prefix, log.LstdFlags)
	}

	st, err := store.Open(cfg.DocumentsPath())
	if err != nil {
		return nil, err
	}
	creds, err := auth.OpenCredentials(cfg.CredentialsPath())
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	client := remote.New(cfg.BackendURL, cfg.RequestTimeout, newLogger("[remote] "))
	bus := event.NewBus(newLogger("[events] "))
	engine := syncer.NewEngine(st, client, bus, newLogger("[sync] "))
	authSvc := auth.NewService(creds, st, client, engine.Online, newLogger("[auth] "))
	monitor := netmon.New(client, engine, bus, cfg.ProbeInterval, cfg.SyncInterval, newLogger("[netmon] "))

	return &app{
		cfg:     cfg,
		store:   st,
		creds:   creds,
		client:  client,
		bus:     bus,
		engine:  engine,
		auth:    authSvc,
		monitor: monitor,
		logger:  newLogger("[clinisync] "),
	}, nil
}

func (a *app) Close() {
	_ = a.creds.Close()
	_ = a.store.Close()
}

// daemonLogWriter returns the log destination for long-running commands:
// rotating file when configured, stderr otherwise.
func daemonLogWriter(cfg *config.Config) io.Writer {
	if cfg.LogFile == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
