package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harun/fablebot/internal/config"
	"github.com/harun/fablebot/internal/daemon"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fablebot",
	Short: "fablebot - a Telegram game master for tabletop adventures",
	Long: `fablebot runs a role-playing adventure in Telegram chats.
A language model plays the game master, dice are rolled for real and replies
arrive as formatted text and narrated voice notes.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.fablebot/fablebot.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// loadConfig loads the config file and applies the global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if rootCmd.PersistentFlags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// getPIDFilePath returns the PID file of the configured data directory
func getPIDFilePath() string {
	if cfg, err := loadConfig(); err == nil {
		return daemon.PIDFilePath(cfg.DataDir)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), daemon.PIDFileName)
	}
	return daemon.PIDFilePath(filepath.Join(home, ".fablebot"))
}

// isRunning reports whether the PID file names a live process
func isRunning(pidFile string) bool {
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		return false
	}
	return daemon.ProcessAlive(pid)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
