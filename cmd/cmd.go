package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eclipticdb/ecliptic/serv"
)

var (
	// These variables are set using -ldflags
	version string
	commit  string
	date    string
)

var (
	log   *zap.SugaredLogger
	conf  *serv.Config
	cpath string
)

// Cmd is the entry point for the CLI
func Cmd() {
	log = newLogger(false).Sugar()

	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:   "ecliptic",
		Short: BuildDetails(),
	}

	rootCmd.PersistentFlags().StringVar(&cpath,
		"config", "./ecliptic.yml", "path to the config file")

	rootCmd.AddCommand(servCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(dbCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%s", err)
	}
}

// setup reads the config file, falling back to defaults when none exists so
// a bare `ecliptic serve` works in an empty directory.
func setup(cpath string) {
	if conf != nil {
		return
	}

	var err error
	if _, serr := os.Stat(cpath); os.IsNotExist(serr) {
		log.Infof("no config file at %s, using defaults", cpath)
		conf, err = serv.NewConfig("", "yaml")
	} else {
		conf, err = serv.ReadInConfig(afero.NewOsFs(), cpath)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// newLogger creates the CLI logger: colorized console output or JSON
func newLogger(json bool) *zap.Logger {
	econf := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		NameKey:        "logger",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var core zapcore.Core
	if json {
		core = zapcore.NewCore(zapcore.NewJSONEncoder(econf), os.Stdout, zap.DebugLevel)
	} else {
		econf.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(econf), os.Stdout, zap.DebugLevel)
	}
	return zap.New(core)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(BuildDetails())
		},
	}
}

// BuildDetails returns the build details as a string
func BuildDetails() string {
	if version == "" {
		return `
Ecliptic (unknown version)
For documentation visit https://github.com/eclipticdb/ecliptic

To build with version information please use the Makefile`
	}

	return fmt.Sprintf(`
Ecliptic %v
For documentation visit https://github.com/eclipticdb/ecliptic

Commit SHA-1          : %v
Commit timestamp      : %v
Go version            : %v`,
		version, commit, date, runtime.Version())
}
