package cmd

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"sqlrestore/internal/config"
	"sqlrestore/internal/database"
	"sqlrestore/internal/progress"
	"sqlrestore/internal/restore"
)

var statusSaveConfig bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and test the server connection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context())
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusSaveConfig, "save-config", false, "Save the connection settings to "+config.ConfigFileName+" after a successful check")
}

// runStatus displays configuration and tests connectivity
func runStatus(ctx context.Context) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	displayHeader()
	displayConfiguration()

	if err := testConnection(ctx); err != nil {
		return err
	}

	if statusSaveConfig {
		if err := config.SaveLocalConfig(config.ConfigFromConfig(cfg)); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		log.Info("Saved configuration to " + config.ConfigFileName)
	}
	return nil
}

// displayHeader shows the application header
func displayHeader() {
	if cfg.NoColor {
		fmt.Println("==============================================================")
		fmt.Println(" SQL Server Restore Tool")
		fmt.Println("==============================================================")
	} else {
		fmt.Println("\033[1;34m==============================================================\033[0m")
		fmt.Println("\033[1;37m SQL Server Restore Tool\033[0m")
		fmt.Println("\033[1;34m==============================================================\033[0m")
	}

	fmt.Printf("Version: %s (built: %s, commit: %s)\n", cfg.Version, cfg.BuildTime, cfg.GitCommit)
	fmt.Println()
}

// displayConfiguration shows current configuration
func displayConfiguration() {
	fmt.Println("Configuration:")
	fmt.Printf("  Server:        %s\n", cfg.ServerDisplay())
	fmt.Printf("  User:          %s\n", cfg.User)
	fmt.Printf("  Database:      %s\n", cfg.Database)

	if cfg.Password != "" {
		fmt.Printf("  Password:      ****** (set)\n")
	} else {
		fmt.Printf("  Password:      (not set)\n")
	}

	fmt.Printf("  Encrypt:       %s\n", cfg.Encrypt)
	if cfg.TrustServerCertificate {
		fmt.Printf("  Certificate:   not validated\n")
	}
	fmt.Printf("  Timeout:       %s\n", cfg.ConnectTimeoutDuration())
	fmt.Printf("  Retries:       %d\n", cfg.ConnectRetries)

	fmt.Println()
	fmt.Println("Restore Defaults:")
	fmt.Printf("  Data Dir:      %s\n", orServerDefault(cfg.DataDir))
	fmt.Printf("  Log Dir:       %s\n", orServerDefault(cfg.LogDir))
	if cfg.Credential != "" {
		fmt.Printf("  Credential:    %s\n", cfg.Credential)
	}
	fmt.Printf("  Stats:         %d%%\n", cfg.Stats)
	if cfg.AuditLog != "" {
		fmt.Printf("  Audit Log:     %s\n", cfg.AuditLog)
	}
	if cfg.Telemetry != nil && cfg.Telemetry.Enabled {
		fmt.Printf("  Tracing:       %s\n", cfg.Telemetry.Endpoint)
	}

	fmt.Println()
	fmt.Println("System Information:")
	fmt.Printf("  OS:            %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go Version:    %s\n", runtime.Version())
	fmt.Println()
}

func orServerDefault(dir string) string {
	if dir == "" {
		return "(server default)"
	}
	return dir
}

// testConnection tests server connectivity and reads the restore defaults
func testConnection(ctx context.Context) error {
	indicator := progress.NewIndicator(true, "line")

	server := database.New(cfg, log)

	indicator.Start(fmt.Sprintf("Connecting to %s...", cfg.ServerDisplay()))
	if err := server.Connect(ctx); err != nil {
		indicator.Fail(fmt.Sprintf("Connection failed: %v", err))
		return err
	}
	defer server.Close()
	indicator.Complete("Connected successfully")

	indicator.Start("Reading server properties...")
	raw, err := server.ServerVersion(ctx)
	if err != nil {
		indicator.Fail(fmt.Sprintf("Failed to get server version: %v", err))
		return err
	}
	paths, err := server.DefaultPaths(ctx)
	if err != nil {
		indicator.Fail(fmt.Sprintf("Failed to read default paths: %v", err))
		return err
	}
	indicator.Complete("Server properties read")

	product := "unknown"
	if v, err := restore.ParseSQLServerVersion(raw); err == nil {
		product = fmt.Sprintf("%s (%d.%d.%d)", v.ProductName(), v.Major, v.Minor, v.Build)
	}

	fmt.Println("Connection Test Results:")
	fmt.Printf("  Status:        Connected ✅\n")
	fmt.Printf("  Version:       %s\n", product)
	fmt.Printf("  Data Path:     %s\n", paths.DataDir)
	fmt.Printf("  Log Path:      %s\n", paths.LogDir)

	fmt.Println()
	fmt.Println("✅ Status check completed successfully!")

	return nil
}
