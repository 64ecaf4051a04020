// Command dbi-mcp-gateway starts the SQL-over-MCP protocol server: it loads
// the declarative tool configuration, dials the IBM-i database gateway, and
// serves the resulting tool registry over stdio or streamable HTTP.
// Grounded on the teacher's cmd/mcpproxy/main.go (cobra root command,
// viper-bound persistent flags, a single RunE building and running the
// server), trimmed of the tray/update-check/import subcommands this module
// doesn't carry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/config"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/gwclient"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/handshake"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/logs"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	flagTools        string
	flagToolsets     []string
	flagTransport    string
	flagListToolsets bool
	flagCheckConfig  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "dbi-mcp-gateway",
		Short:        "Exposes declarative SQL operations against Db2 for i over the Model Context Protocol",
		Version:      server.Version,
		SilenceUsage: true,
		RunE:         runServe,
	}

	cmd.Flags().StringVar(&flagTools, "tools", "", "path to a tools YAML file, directory, or glob (overrides TOOLS_YAML_PATH)")
	cmd.Flags().StringSliceVar(&flagToolsets, "toolsets", nil, "restrict registration to these toolsets (overrides SELECTED_TOOLSETS)")
	cmd.Flags().StringVar(&flagTransport, "transport", "", "stdio or http (overrides MCP_TRANSPORT_TYPE)")
	cmd.Flags().BoolVar(&flagListToolsets, "list-toolsets", false, "print every configured toolset and exit")
	cmd.Flags().BoolVar(&flagCheckConfig, "check-config", false, "load and validate tool configuration, print merge stats, and exit")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	settings, err := config.LoadSettings(v)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	logger, err := logs.New(logs.DefaultConfig())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	loadResult := config.LoadFromPath(settings.ToolsYAMLPath, settings.MergeOptions())
	if !loadResult.Success {
		for _, e := range loadResult.Errors {
			logger.Error("tool configuration error", zap.String("file", e.File), zap.String("field", e.Field), zap.String("message", e.Message))
		}
		return fmt.Errorf("tool configuration is invalid (%d error(s))", len(loadResult.Errors))
	}

	if flagListToolsets {
		for name, ts := range loadResult.Config.Toolsets {
			fmt.Printf("%s\t%s\t%d tools\n", name, ts.Description, len(ts.Tools))
		}
		return nil
	}

	if flagCheckConfig {
		fmt.Printf("config OK: %d file(s) resolved, %d tool(s), %d toolset(s), %d source(s)\n",
			loadResult.Stats.SourcesLoaded, loadResult.Stats.ToolsTotal,
			loadResult.Stats.ToolsetsTotal, loadResult.Stats.SourcesTotal)
		for _, w := range loadResult.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		return nil
	}

	gwEndpoint := settings.StaticSource().Host
	gwClient, err := gwclient.Dial(cmd.Context(), gwEndpoint, nil, logger)
	if err != nil {
		return fmt.Errorf("dial database gateway: %w", err)
	}
	defer gwClient.Close()

	keys, err := loadOrGenerateKeys(settings)
	if err != nil {
		return fmt.Errorf("init handshake keys: %w", err)
	}

	srv, err := server.New(server.Options{
		Settings:      settings,
		Config:        loadResult.Config,
		GatewayClient: gwClient,
		Keys:          keys,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return srv.Serve(ctx)
}

// loadOrGenerateKeys resolves the handshake RSA keypair: load from
// IBMI_AUTH_PRIVATE_KEY_PATH when configured, otherwise generate an
// ephemeral one for the life of this process (fine for stdio/dev use, but
// every restart invalidates outstanding ibmi-mode sessions, which is
// acceptable since tokens never survive a pool already torn down anyway).
func loadOrGenerateKeys(settings *config.Settings) (*handshake.KeyStore, error) {
	keyID := settings.IBMiAuthKeyID
	if keyID == "" {
		keyID = "default"
	}

	if settings.IBMiAuthPrivateKeyPath != "" {
		kp, err := handshake.LoadKeyPair(keyID, settings.IBMiAuthPrivateKeyPath)
		if err != nil {
			return nil, err
		}
		return handshake.NewKeyStore(kp), nil
	}

	kp, err := handshake.GenerateKeyPair(keyID)
	if err != nil {
		return nil, err
	}
	return handshake.NewKeyStore(kp), nil
}
