package main

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/abyssdigger/lgrbus/consolewriter"
	"github.com/abyssdigger/lgrbus/filewriter"
	"github.com/abyssdigger/lgrbus/hecwriter"
	"github.com/abyssdigger/lgrbus/internal/apperrors"
)

// demoConfig is the optional YAML file given with --config. Flags and
// LGRDEMO_* variables override it.
type demoConfig struct {
	File            filewriter.Config    `yaml:"file"`
	Console         consolewriter.Config `yaml:"console"`
	HEC             hecwriter.Config     `yaml:"hec"`
	MetricsAddr     string               `yaml:"metricsAddr"`
	Duration        time.Duration        `yaml:"duration"`
	ShutdownTimeout time.Duration        `yaml:"shutdownTimeout"`
}

func defaultConfig() demoConfig {
	return demoConfig{
		File: filewriter.Config{
			Name:     "TestFileWriter",
			Filename: "./logs/test.txt",
			Backups:  3,
			MaxSize:  1024,
			Mode:     0o644,
		},
		Console:         consolewriter.Config{Colors: consolewriter.COLOR_AUTO},
		Duration:        2 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

func loadConfig(path string) (demoConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return cfg, apperrors.NewAppError(apperrors.ErrConfigLoad, "cannot read "+path, err)
	}
	return cfg, nil
}
