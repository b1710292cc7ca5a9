package command

// root.go defines the root command for socialhubCLI and loads the
// settings shared by every subcommand.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Settings is the resolved client configuration: file values with flags on top
type Settings struct {
	APIURL       string        `mapstructure:"api_url"`
	WSURL        string        `mapstructure:"ws_url"`
	Token        string        `mapstructure:"token"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	BackoffCap   time.Duration `mapstructure:"backoff_cap"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

var (
	cfgFile  string
	settings Settings
	v        = viper.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "socialhubCLI",
	Short: "socialhubCLI - SocialHub notifications from the terminal",
	Long: `socialhubCLI talks to the SocialHub notification API. It can:
- List, read and delete your notifications
- Show your unread count
- Watch notifications live over the push channel, falling back to polling

Settings are read from $HOME/.socialhub/config.yaml; flags override them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := LoadSettings(v, cfgFile)
		if err != nil {
			return err
		}
		settings = *s
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $HOME/.socialhub/config.yaml)")
	flags.String("api", "", "API server URL")
	flags.String("ws", "", "push channel URL")
	flags.String("token", "", "access token (JWT)")
	flags.Duration("poll-interval", 0, "polling interval once push is unavailable")
	flags.Int("max-attempts", 0, "reconnect attempts before polling")

	_ = v.BindPFlag("api_url", flags.Lookup("api"))
	_ = v.BindPFlag("ws_url", flags.Lookup("ws"))
	_ = v.BindPFlag("token", flags.Lookup("token"))
	_ = v.BindPFlag("poll_interval", flags.Lookup("poll-interval"))
	_ = v.BindPFlag("max_attempts", flags.Lookup("max-attempts"))
}

// DefaultConfigPath is $HOME/.socialhub/config.yaml
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".socialhub", "config.yaml")
	}
	return filepath.Join(home, ".socialhub", "config.yaml")
}

// LoadSettings reads path (or the default location) into v. A missing file
// is not an error; defaults and bound flags still apply.
func LoadSettings(v *viper.Viper, path string) (*Settings, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SOCIALHUB")
	v.AutomaticEnv()

	v.SetDefault("api_url", "http://localhost:8080")
	v.SetDefault("ws_url", "ws://localhost:8080/ws")
	v.SetDefault("poll_interval", 30*time.Second)
	v.SetDefault("backoff_base", time.Second)
	v.SetDefault("backoff_cap", 30*time.Second)
	v.SetDefault("max_attempts", 5)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return s, nil
}
