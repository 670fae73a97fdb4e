package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "lgrdemo",
		Short: "Structured logging bus demo",
		Long: `lgrdemo registers a custom TEST level, logs through two loggers into a
shared rolling file and the console, and shuts the bus down on SIGINT,
SIGTERM or when --duration expires.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v.GetString("config"))
			if err != nil {
				return err
			}
			applyOverrides(v, &cfg)
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringP("config", "c", "", "YAML file with writer settings")
	f.String("log-file", "", "rolling log file (default ./logs/test.txt)")
	f.String("colors", "", "console colors: auto, always or never")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	f.String("hec-url", "", "HTTP event collector base URL")
	f.String("hec-token", "", "HTTP event collector token")
	f.Duration("duration", 0, "shut down after this long (default 2s)")
	f.Duration("shutdown-timeout", 0, "bound on the shutdown barrier (default 5s)")
	_ = v.BindPFlags(f)

	v.SetEnvPrefix("LGRDEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return cmd
}

func applyOverrides(v *viper.Viper, cfg *demoConfig) {
	if s := v.GetString("log-file"); s != "" {
		cfg.File.Filename = s
	}
	if s := v.GetString("colors"); s != "" {
		cfg.Console.Colors = consoleColors(s)
	}
	if s := v.GetString("metrics-addr"); s != "" {
		cfg.MetricsAddr = s
	}
	if s := v.GetString("hec-url"); s != "" {
		cfg.HEC.BaseURL = s
	}
	if s := v.GetString("hec-token"); s != "" {
		cfg.HEC.Token = s
	}
	if d := v.GetDuration("duration"); d > 0 {
		cfg.Duration = d
	}
	if d := v.GetDuration("shutdown-timeout"); d > 0 {
		cfg.ShutdownTimeout = d
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
}
