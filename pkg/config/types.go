package config

import "time"

// Config is the laravel-vps configuration, loaded by viper from
// laravel-vps.yaml, LARAVEL_VPS_* environment variables and flags.
type Config struct {
	Paths    PathsConfig    `mapstructure:"paths" yaml:"paths"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`
	Features FeaturesConfig `mapstructure:"features" yaml:"features"`
	Defaults DefaultsConfig `mapstructure:"defaults" yaml:"defaults"`
	Network  NetworkConfig  `mapstructure:"network" yaml:"network"`
	SSH      SSHConfig      `mapstructure:"ssh" yaml:"ssh"`

	Verbose bool `mapstructure:"verbose" yaml:"-"`
	NoColor bool `mapstructure:"no_color" yaml:"-"`
	DryRun  bool `mapstructure:"dry_run" yaml:"-"`
}

// PathsConfig locates everything the installer reads or writes on the server.
type PathsConfig struct {
	WebRoot        string `mapstructure:"web_root" yaml:"web_root"`
	SitesAvailable string `mapstructure:"sites_available" yaml:"sites_available"`
	SitesEnabled   string `mapstructure:"sites_enabled" yaml:"sites_enabled"`
	// Snippets holds one directory per site with extra location blocks.
	Snippets    string `mapstructure:"snippets" yaml:"snippets"`
	PhpMyAdmin  string `mapstructure:"phpmyadmin_base" yaml:"phpmyadmin_base"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	LockFile    string `mapstructure:"lock_file" yaml:"lock_file"`
	StateDir    string `mapstructure:"state_dir" yaml:"state_dir"`
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file"` // empty disables
	WebUser     string `mapstructure:"web_user" yaml:"web_user"`
	DefaultSite string `mapstructure:"default_site" yaml:"default_site"`
	MySQLSocket string `mapstructure:"mysql_socket" yaml:"mysql_socket"`
}

// TimeoutsConfig bounds external calls. A timeout fails the call like any
// other error.
type TimeoutsConfig struct {
	Default  time.Duration `mapstructure:"default" yaml:"default"`
	Packages time.Duration `mapstructure:"packages" yaml:"packages"`
	Composer time.Duration `mapstructure:"composer" yaml:"composer"`
	Certbot  time.Duration `mapstructure:"certbot" yaml:"certbot"`
	Probe    time.Duration `mapstructure:"probe" yaml:"probe"`
}

// FeaturesConfig toggles behavior within the single pipeline.
type FeaturesConfig struct {
	ValidateInputs   bool `mapstructure:"validate_inputs" yaml:"validate_inputs"`
	SecureAdminPanel bool `mapstructure:"secure_admin_panel" yaml:"secure_admin_panel"`
	Firewall         bool `mapstructure:"firewall" yaml:"firewall"`
}

// DefaultsConfig seeds every prompt.
type DefaultsConfig struct {
	ProjectName   string `mapstructure:"project_name" yaml:"project_name"`
	Domain        string `mapstructure:"domain" yaml:"domain"`
	PHPVersion    string `mapstructure:"php_version" yaml:"php_version"`
	InstallMethod string `mapstructure:"install_method" yaml:"install_method"`
	Branch        string `mapstructure:"branch" yaml:"branch"`
	DBHost        string `mapstructure:"db_host" yaml:"db_host"`
	DBPort        int    `mapstructure:"db_port" yaml:"db_port"`
	AdminAlias    string `mapstructure:"admin_alias" yaml:"admin_alias"`
	AdminUser     string `mapstructure:"admin_user" yaml:"admin_user"`
	CertEmail     string `mapstructure:"cert_email" yaml:"cert_email"`
	PhpMyAdminURL string `mapstructure:"phpmyadmin_url" yaml:"phpmyadmin_url"`
}

// NetworkConfig lists the outside services the installer talks to.
type NetworkConfig struct {
	ProbeTargets []string `mapstructure:"probe_targets" yaml:"probe_targets"` // host:port
	Resolvers    []string `mapstructure:"resolvers" yaml:"resolvers"`         // host:port
	IPServices   []string `mapstructure:"ip_services" yaml:"ip_services"`     // plain-text echo URLs
}

// SSHConfig selects remote mode. An empty Target runs locally.
type SSHConfig struct {
	Target      string `mapstructure:"target" yaml:"target"` // user@host
	Port        int    `mapstructure:"port" yaml:"port"`
	Key         string `mapstructure:"key" yaml:"key"`
	HostKeyMode string `mapstructure:"host_key_mode" yaml:"host_key_mode"`
	Sudo        bool   `mapstructure:"sudo" yaml:"sudo"`
}

// Remote reports whether commands go over SSH.
func (c *Config) Remote() bool {
	return c.SSH.Target != ""
}
