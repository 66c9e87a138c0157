package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/RubachokBoss/speech-sdk/internal/config"
	"github.com/RubachokBoss/speech-sdk/pkg/client"
	"github.com/RubachokBoss/speech-sdk/pkg/logger"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "speechctl",
	Short: "Drive the speech api from a terminal or serve it over HTTP",
	Long: `speechctl talks to the speech api through the SDK: manage organisations,
students and challenges over REST, stream wave files for recordings,
recognitions and pronunciation analyses over the websocket, or run the
HTTP bridge with "serve".`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log := logger.NewWithConfig(cfg.Logging.Level, cfg.Logging.Pretty, cfg.Logging.NoColor)
	return cfg, log, nil
}

// connect builds a client from the api section and signs in when only
// credentials are configured.
func connect(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*client.Client, error) {
	c := client.New(cfg.API.Settings(), client.WithLogger(log))

	if cfg.API.Token == "" && cfg.API.Username != "" {
		if err := c.Authenticate(ctx, cfg.API.Username, cfg.API.Password, cfg.API.Scope); err != nil {
			return nil, fmt.Errorf("authenticate: %w", err)
		}
	}
	return c, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
