package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/creasty/defaults"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/execution-calltree/pkg/server"
)

const defaultConfigFile = "config.yaml"

var (
	log              = logrus.New()
	serverConfigFile string
	logLevel         string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "execution-calltree",
	Short: "Reconstructs EVM call trees from structlog traces.",
	Long: `Fetches debug_traceTransaction structlog traces from execution nodes,
persists them and rebuilds the call tree of each transaction.

Without a subcommand it runs the server, same as "serve".`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverConfigFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "overrides the logging level from the config file")
}

// loadConfig reads the config file over the defaults. When required is
// false a missing default config file yields the defaults.
func loadConfig(required bool) (*server.Config, error) {
	file := serverConfigFile
	if file == "" {
		file = defaultConfigFile
	}

	config := &server.Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(file)

	switch {
	case errors.Is(err, fs.ErrNotExist) && !required && serverConfigFile == "":
		log.WithField("file", file).Debug("No config file, using defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(yamlFile, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	setLogLevel(config.LoggingLevel)

	return config, nil
}

func setLogLevel(configured string) {
	if logLevel != "" {
		configured = logLevel
	}

	level, err := logrus.ParseLevel(configured)
	if err != nil {
		log.WithError(err).Warn("Invalid logging level, using info")

		level = logrus.InfoLevel
	}

	log.SetLevel(level)
}
