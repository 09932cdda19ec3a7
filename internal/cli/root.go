// Package cli implements widgetctl, the command line stand-in for the
// device's widgets, shortcuts and voice intents. Every command opens the shared
// state directory directly, the same way an out-of-process surface does.
package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/c.mueller/househelper-sync/internal/state"
	"github.com/c.mueller/househelper-sync/internal/syncer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	keyConfig       = "config"
	keyStateDir     = "state.dir"
	keyAuthority    = "sync.authority"
	keyFreshness    = "sync.freshness"
	keyApplyTimeout = "sync.apply_timeout"
	keySeeds        = "cluster.seeds"
	keyEncryptKey   = "cluster.encrypt_key"
	keyJoinTimeout  = "cluster.join_timeout"
	keySerfAddr     = "widgetctl.serf_addr"
	keyNodeName     = "widgetctl.node_name"
)

type app struct {
	v   *viper.Viper
	now func() time.Time
}

// NewRootCmd builds the widgetctl command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(viper.New(), time.Now)
}

func newRootCmd(v *viper.Viper, now func() time.Time) *cobra.Command {
	a := &app{v: v, now: now}

	rootCmd := &cobra.Command{
		Use:   "widgetctl",
		Short: "Queue household actions and read the cached task list",
		Long: `widgetctl records taps, shortcuts and voice intents in the device's
shared action queue and renders the cached task list, without talking to the
task service. "widgetctl sync" runs one sync cycle on demand.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.loadConfig,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file shared with the daemons (YAML)")
	flags.String("state-dir", "./state", "device state directory")
	flags.String("authority", "http://localhost:8080", "task service base URL")

	_ = v.BindPFlag(keyConfig, flags.Lookup("config"))
	_ = v.BindPFlag(keyStateDir, flags.Lookup("state-dir"))
	_ = v.BindPFlag(keyAuthority, flags.Lookup("authority"))

	// Renderer group membership, used by watch and sync.
	flags.StringSlice("seed", nil, "renderer group member to join (host:port), repeatable")
	flags.String("serf-addr", "0.0.0.0:0", "gossip bind address for this process")
	flags.String("node-name", "", "name in the renderer group (default host-widgetctl-pid)")

	_ = v.BindPFlag(keySeeds, flags.Lookup("seed"))
	_ = v.BindPFlag(keySerfAddr, flags.Lookup("serf-addr"))
	_ = v.BindPFlag(keyNodeName, flags.Lookup("node-name"))

	v.SetDefault(keyFreshness, syncer.DefaultFreshness)
	v.SetDefault(keyApplyTimeout, syncer.DefaultApplyTimeout)
	v.SetDefault(keyJoinTimeout, 10)

	v.SetEnvPrefix("HOUSEHELPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Shorter names than the nested config keys would give.
	_ = v.BindEnv(keyStateDir, "HOUSEHELPER_STATE_DIR")
	_ = v.BindEnv(keyAuthority, "HOUSEHELPER_AUTHORITY")

	rootCmd.AddCommand(a.completeCmd())
	rootCmd.AddCommand(a.addCmd())
	rootCmd.AddCommand(a.timerCmd())
	rootCmd.AddCommand(a.tasksCmd())
	rootCmd.AddCommand(a.pendingCmd())
	rootCmd.AddCommand(a.syncCmd())
	rootCmd.AddCommand(a.watchCmd())

	return rootCmd
}

func (a *app) loadConfig(cmd *cobra.Command, args []string) error {
	cfgFile := a.v.GetString(keyConfig)
	if cfgFile == "" {
		return nil
	}

	a.v.SetConfigFile(cfgFile)
	a.v.SetConfigType("yaml")
	if err := a.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

func (a *app) openState() (*state.State, error) {
	st, err := state.Open(a.v.GetString(keyStateDir))
	if err != nil {
		return nil, fmt.Errorf("failed to open state directory: %w", err)
	}
	return st, nil
}
