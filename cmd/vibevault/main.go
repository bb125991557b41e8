package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vibevault/vibevault/pkg/api"
	"github.com/vibevault/vibevault/pkg/auth"
	"github.com/vibevault/vibevault/pkg/ble"
	"github.com/vibevault/vibevault/pkg/config"
	"github.com/vibevault/vibevault/pkg/events"
	"github.com/vibevault/vibevault/pkg/log"
	"github.com/vibevault/vibevault/pkg/metrics"
	"github.com/vibevault/vibevault/pkg/store"
	syncpkg "github.com/vibevault/vibevault/pkg/sync"
	"github.com/vibevault/vibevault/pkg/vault"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var cfg config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vibevault",
	Short: "VibeVault - offline-first credential vault with BLE sync",
	Long: `VibeVault keeps your credentials in a locally encrypted vault,
generates TOTP codes, and synchronizes entries with a paired mobile
device over Bluetooth Low Energy. Nothing ever leaves your machines
unencrypted.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"VibeVault version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to the configuration file")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(advertiseCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(totpCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(historyCmd)
}

func initConfig() {
	path, _ := rootCmd.PersistentFlags().GetString("config")
	if path == "" {
		if base, err := os.UserConfigDir(); err == nil {
			path = base + "/vibevault/vibevault.yaml"
		}
	}

	loaded, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg = loaded

	if dir, _ := rootCmd.PersistentFlags().GetString("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	if level, _ := rootCmd.PersistentFlags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json"); jsonOut {
		cfg.Log.JSON = true
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
}

// openCore assembles the full service stack over the configured data
// directory.
func openCore() (*api.Core, *store.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}

	sessions := auth.NewManager(st, auth.Options{IdleTimeout: cfg.IdleTimeout.Std()})
	broker := events.NewBroker()
	broker.Start()

	syncMgr := syncpkg.NewManager(syncpkg.Config{
		Store:      st,
		Sessions:   sessions,
		Advertiser: ble.NewAdvertiser(),
		Scanner:    ble.NewScanner(),
		DeviceName: cfg.DeviceName,
		Timeouts: syncpkg.Timeouts{
			Scan:     cfg.Sync.ScanTimeout.Std(),
			Pairing:  cfg.Sync.PairingTimeout.Std(),
			ChunkAck: cfg.Sync.ChunkAckTimeout.Std(),
			Session:  cfg.Sync.SessionTimeout.Std(),
		},
		Broker: broker,
	})

	core := api.New(api.Config{
		Store:    st,
		Sessions: sessions,
		Vault:    vault.NewService(st, sessions),
		Sync:     syncMgr,
		Broker:   broker,
	})

	if cfg.Metrics.Enabled {
		go func() {
			http.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Listen, nil); err != nil {
				log.Errorf("metrics listener failed", err)
			}
		}()
	}

	return core, st, nil
}

func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// unlock prompts for credentials and opens a session.
func unlock(core *api.Core) (string, error) {
	username, err := promptLine("Username: ")
	if err != nil {
		return "", err
	}
	password, err := promptLine("Master password: ")
	if err != nil {
		return "", err
	}
	return core.UnlockVault(username, password)
}
