package cmd

import (
	"fmt"
	"path"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/redentordev/laravel-vps/pkg/envfile"
	"github.com/redentordev/laravel-vps/pkg/host"
	"github.com/redentordev/laravel-vps/pkg/laravel"
)

var (
	envDir string
	envPHP string
)

var envKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Manage the .env of an installed application",
}

var envSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set one key in the application's .env",
	Long: `Insert or replace KEY in the .env of an installed project, quoting the
value as needed. When the configuration is cached, the cache is rebuilt.

Examples:
  laravel-vps env set --dir /var/www/shop MAIL_MAILER smtp
  laravel-vps env set --dir /var/www/shop APP_NAME "My Shop"`,
	Args: cobra.ExactArgs(2),
	RunE: runEnvSet,
}

func init() {
	rootCmd.AddCommand(envCmd)
	envCmd.AddCommand(envSetCmd)
	envSetCmd.Flags().StringVar(&envDir, "dir", "", "project directory (required)")
	envSetCmd.Flags().StringVar(&envPHP, "php", "", "PHP version used to rebuild the config cache, e.g. 8.3")
	_ = envSetCmd.MarkFlagRequired("dir")
}

func runEnvSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	key, value := args[0], args[1]
	if !envKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid key %q: use upper case letters, digits and underscores", key)
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	f, err := envfile.Load(ctx, s.host, envDir)
	if err != nil {
		return err
	}
	f.Set(envfile.Pair{Key: key, Value: value})
	if err := f.Save(ctx, s.host); err != nil {
		return err
	}
	s.out.Success("Set %s in %s", key, f.Path)

	cached, err := host.Exists(ctx, s.host, path.Join(envDir, "bootstrap", "cache", "config.php"))
	if err != nil || !cached {
		return nil
	}
	if err := laravel.NewArtisan(s.host, envPHP, s.cfg.Timeouts.Default).CacheConfig(ctx, envDir); err != nil {
		return fmt.Errorf("failed to rebuild config cache: %w", err)
	}
	s.out.Info("Rebuilt config cache")
	return nil
}
