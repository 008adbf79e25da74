package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/redentordev/laravel-vps/pkg/config"
	"github.com/redentordev/laravel-vps/pkg/telemetry"
)

var (
	cfgFile         string
	verbose         bool
	noColor         bool
	dryRun          bool
	sshTarget       string
	sshKey          string
	sshPort         int
	useSudo         bool
	hostKeyModeFlag string
	// Version, GitCommit, and BuildTime are set via ldflags during build
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "laravel-vps",
	Short: "Provision a VPS for a Laravel application",
	Long: `laravel-vps turns a fresh Debian or Ubuntu server into a host for one
Laravel application: PHP-FPM, nginx and MySQL, the project itself, its .env,
migrations, a Let's Encrypt certificate and optionally phpMyAdmin.

Run it on the server as root, or from your workstation with --ssh user@host.
If a step fails, the changes made by this run are rolled back.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return telemetry.Init(telemetry.ConfigFromEnv(Version))
	},
}

// GetVersionInfo returns formatted version information
func GetVersionInfo() string {
	info := fmt.Sprintf("laravel-vps %s", Version)
	if GitCommit != "unknown" && GitCommit != "" {
		info += fmt.Sprintf(" (commit: %s)", GitCommit)
	}
	if BuildTime != "unknown" && BuildTime != "" {
		info += fmt.Sprintf("\nBuilt: %s", BuildTime)
	}
	return info
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = telemetry.Shutdown(shutdownCtx)
	cancel()

	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Set custom version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(`laravel-vps {{.Version}}
Commit:  %s
Built:   %s
`, GitCommit, BuildTime))

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./laravel-vps.yaml or /etc/laravel-vps/laravel-vps.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.BoolVar(&dryRun, "dry-run", false, "print commands and file writes instead of running them")
	flags.StringVar(&sshTarget, "ssh", "", "provision user@host over SSH instead of this machine")
	flags.StringVar(&sshKey, "ssh-key", "", "SSH private key (default ~/.ssh/id_ed25519 or ~/.ssh/id_rsa)")
	flags.IntVar(&sshPort, "ssh-port", 22, "SSH port")
	flags.BoolVar(&useSudo, "sudo", false, "run remote commands through passwordless sudo")
	flags.StringVar(&hostKeyModeFlag, "host-key-mode", "", "SSH host key verification mode: tofu, strict, insecure (default: tofu)")

	// Bind flags to viper
	for key, flag := range map[string]string{
		"verbose":           "verbose",
		"no_color":          "no-color",
		"dry_run":           "dry-run",
		"ssh.target":        "ssh",
		"ssh.key":           "ssh-key",
		"ssh.port":          "ssh-port",
		"ssh.sudo":          "sudo",
		"ssh.host_key_mode": "host-key-mode",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

// findEnvFile searches for .env file in current directory and parent directories
func findEnvFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	// Search up to 10 levels up
	for i := 0; i < 10; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	// Load .env file from current or parent directories
	if envFile := findEnvFile(); envFile != "" {
		_ = godotenv.Load(envFile)
	}

	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/laravel-vps")
		viper.SetConfigType("yaml")
		viper.SetConfigName("laravel-vps")
	}

	viper.SetEnvPrefix("LARAVEL_VPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Warning: could not read %s: %v\n", cfgFile, err)
	}
}
