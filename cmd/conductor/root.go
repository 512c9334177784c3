package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/martinemde/conductor/config"
	"github.com/martinemde/conductor/logging"
)

// version is reported to capability servers as the client version.
var version = "dev"

// app is the state shared by subcommands once the root has loaded config.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
}

// Execute runs the root command.
func Execute() error {
	rootCmd, err := newRootCmd()
	if err != nil {
		return err
	}
	return rootCmd.Execute()
}

func newRootCmd() (*cobra.Command, error) {
	a := &app{v: viper.New()}
	rootCmd := &cobra.Command{
		Use:           "conductor",
		Short:         "conductor drives a language model through guarded rounds of capability calls",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file path (default ./conductor.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	if err := a.v.BindPFlag("log.debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return nil, fmt.Errorf("bind debug flag: %w", err)
	}
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.load()
	}
	rootCmd.AddCommand(runCmd(a))
	rootCmd.AddCommand(toolsCmd(a))
	rootCmd.AddCommand(runsCmd(a))
	return rootCmd, nil
}

func (a *app) load() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	logging.Init(cfg.Log.Debug)
	return nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
