package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("paths.web_root", "/var/www")
	v.SetDefault("paths.sites_available", "/etc/nginx/sites-available")
	v.SetDefault("paths.sites_enabled", "/etc/nginx/sites-enabled")
	v.SetDefault("paths.snippets", "/etc/nginx/snippets/laravel-vps")
	v.SetDefault("paths.phpmyadmin_base", "/usr/share")
	v.SetDefault("paths.log_file", "/var/log/laravel-vps.log")
	v.SetDefault("paths.lock_file", "/var/lock/laravel-vps.lock")
	v.SetDefault("paths.state_dir", "/var/lib/laravel-vps")
	v.SetDefault("paths.metrics_file", "")
	v.SetDefault("paths.web_user", "www-data")
	v.SetDefault("paths.default_site", "default")
	v.SetDefault("paths.mysql_socket", "/var/run/mysqld/mysqld.sock")

	v.SetDefault("timeouts.default", 2*time.Minute)
	v.SetDefault("timeouts.packages", 20*time.Minute)
	v.SetDefault("timeouts.composer", 15*time.Minute)
	v.SetDefault("timeouts.certbot", 5*time.Minute)
	v.SetDefault("timeouts.probe", 5*time.Second)

	v.SetDefault("features.validate_inputs", true)
	v.SetDefault("features.secure_admin_panel", true)
	v.SetDefault("features.firewall", true)

	v.SetDefault("defaults.project_name", "laravel-app")
	v.SetDefault("defaults.domain", "example.com")
	v.SetDefault("defaults.php_version", "8.3")
	v.SetDefault("defaults.install_method", "scaffold")
	v.SetDefault("defaults.branch", "main")
	v.SetDefault("defaults.db_host", "127.0.0.1")
	v.SetDefault("defaults.db_port", 3306)
	v.SetDefault("defaults.admin_alias", "phpmyadmin")
	v.SetDefault("defaults.admin_user", "admin")
	v.SetDefault("defaults.phpmyadmin_url", "https://www.phpmyadmin.net/downloads/phpMyAdmin-latest-all-languages.tar.gz")

	v.SetDefault("network.probe_targets", []string{"1.1.1.1:443", "8.8.8.8:443"})
	v.SetDefault("network.resolvers", []string{"1.1.1.1:53", "8.8.8.8:53", "9.9.9.9:53"})
	v.SetDefault("network.ip_services", []string{
		"https://api.ipify.org",
		"https://ifconfig.me/ip",
		"https://icanhazip.com",
	})

	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.host_key_mode", "tofu")
}

// Load decodes v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
