package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"sqlrestore/internal/config"
	"sqlrestore/internal/logger"
	"sqlrestore/internal/security"
)

var (
	cfg         *config.Config
	log         logger.Logger
	auditLogger *security.AuditLogger
	rateLimiter *security.RateLimiter
)

var noConfigUsage = "Don't load configuration from " + config.ConfigFileName

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sqlrestore",
	Short: "SQL Server restore planner and executor",
	Long: `Plan and run SQL Server restore sequences from full, differential and
transaction log backups.

Features:
- Restore chain ordering (full, latest differential, logs by time)
- Point-in-time recovery with STOPAT
- NORECOVERY and STANDBY targets for log shipping
- Continue a restore left in RESTORING state
- File relocation by explicit mapping or destination directories
- Backups on disk, UNC shares, Azure Blob Storage and S3-compatible storage
- Backup history from msdb with missing file prechecks

For help with specific commands, use: sqlrestore [command] --help`,
	Version:       "",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return nil
		}

		// Store which flags were explicitly set by user
		flagsSet := make(map[string]bool)
		cmd.Flags().Visit(func(f *pflag.Flag) {
			flagsSet[f.Name] = true
		})

		if !cfg.NoLoadConfig {
			if localCfg, err := config.LoadLocalConfig(); err != nil {
				log.Warn("Failed to load local config", "error", err)
			} else if localCfg != nil {
				savedServer := cfg.Server
				savedPort := cfg.Port
				savedInstance := cfg.Instance
				savedUser := cfg.User
				savedEncrypt := cfg.Encrypt
				savedAuditLog := cfg.AuditLog

				config.ApplyLocalConfig(cfg, localCfg)
				log.Debug("Loaded configuration from " + config.ConfigFileName)

				// Flags have priority over the config file
				if flagsSet["server"] {
					cfg.Server = savedServer
				}
				if flagsSet["port"] {
					cfg.Port = savedPort
				}
				if flagsSet["instance"] {
					cfg.Instance = savedInstance
				}
				if flagsSet["user"] {
					cfg.User = savedUser
				}
				if flagsSet["encrypt"] {
					cfg.Encrypt = savedEncrypt
				}
				if flagsSet["audit-log"] {
					cfg.AuditLog = savedAuditLog
				}
			}
		}

		if !flagsSet["password"] {
			cfg.UpdateFromEnvironment()
		}

		// The audit file may come from the config file, so open it late
		auditLogger = security.NewAuditLogger(log, cfg.AuditLog)
		rateLimiter = security.NewRateLimiter(cfg.ConnectRetries, log)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if auditLogger != nil {
			return auditLogger.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context, config *config.Config, logger logger.Logger) error {
	cfg = config
	log = logger

	rootCmd.Version = fmt.Sprintf("%s (built: %s, commit: %s)",
		cfg.Version, cfg.BuildTime, cfg.GitCommit)

	// Connection flags
	rootCmd.PersistentFlags().StringVarP(&cfg.Server, "server", "S", cfg.Server, `SQL Server host, host\instance or host,port`)
	rootCmd.PersistentFlags().IntVar(&cfg.Port, "port", cfg.Port, "SQL Server port (0 = default or SQL Browser)")
	rootCmd.PersistentFlags().StringVar(&cfg.Instance, "instance", cfg.Instance, "Named instance")
	rootCmd.PersistentFlags().StringVarP(&cfg.User, "user", "U", cfg.User, "Login name")
	rootCmd.PersistentFlags().StringVarP(&cfg.Password, "password", "P", cfg.Password, "Login password (prefer MSSQL_PASSWORD)")
	rootCmd.PersistentFlags().StringVar(&cfg.Encrypt, "encrypt", cfg.Encrypt, "Connection encryption (true|false|disable|strict)")
	rootCmd.PersistentFlags().BoolVar(&cfg.TrustServerCertificate, "trust-server-certificate", cfg.TrustServerCertificate, "Skip server certificate validation")
	rootCmd.PersistentFlags().StringVar(&cfg.AppName, "app-name", cfg.AppName, "Application name reported to the server")
	rootCmd.PersistentFlags().IntVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "Connection timeout in seconds")
	rootCmd.PersistentFlags().IntVar(&cfg.ConnectRetries, "max-retries", cfg.ConnectRetries, "Maximum connection attempts")

	// Output and audit flags
	rootCmd.PersistentFlags().StringVar(&cfg.AuditLog, "audit-log", cfg.AuditLog, "Append audit events to this file (JSON lines)")
	rootCmd.PersistentFlags().StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write Prometheus textfile metrics after a restore")
	rootCmd.PersistentFlags().StringVar(&cfg.PushgatewayURL, "pushgateway", cfg.PushgatewayURL, "Push restore metrics to this Prometheus Pushgateway")
	rootCmd.PersistentFlags().BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&cfg.NoLoadConfig, "no-config", false, noConfigUsage)

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statusCmd)
}
