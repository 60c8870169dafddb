package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mistakeknot/tapcall/internal/app"
	"github.com/mistakeknot/tapcall/internal/cli"
	"github.com/mistakeknot/tapcall/internal/config"
	"github.com/mistakeknot/tapcall/internal/core"
	"github.com/mistakeknot/tapcall/internal/logging"
	"github.com/mistakeknot/tapcall/internal/qr"
	"github.com/mistakeknot/tapcall/internal/server"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "tapcall",
		Short:        "Call-waiter request board for cafés",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: search standard locations)")

	load := func() (*config.Config, error) {
		if configPath != "" {
			return config.LoadFromFile(configPath)
		}
		return config.Load()
	}

	root.AddCommand(serveCmd(load), tenantCmd(), qrCmd(load), versionCmd())
	return root
}

func serveCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	a, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(server.Config{
		Addr:        cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:     a.Handler,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage cafés in the tenants file",
	}
	var file, id, name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a café to the tenants file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := cli.AddTenant(file, id, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added tenant %s (%s) to %s\n", t.ID, t.Name, file)
			return nil
		},
	}
	add.Flags().StringVar(&file, "file", "tenants.yaml", "tenants file path")
	add.Flags().StringVar(&id, "id", "", "tenant id (generated when empty)")
	add.Flags().StringVar(&name, "name", "", "display name")
	_ = add.MarkFlagRequired("name")
	cmd.AddCommand(add)
	return cmd
}

func qrCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		table, name, tenantID string
		baseURL, business     string
		out                   string
		size                  int
		decorate              bool
	)
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Write a table's QR code as PNG",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if size == 0 {
				size = cfg.QR.Size
			}
			gen := qr.NewGenerator(qr.Options{
				BaseURL:    cfg.Server.BaseURL,
				Size:       size,
				ScanText:   cfg.QR.ScanText,
				FooterText: cfg.QR.FooterText,
			})
			code, err := gen.Generate(qr.Params{
				TableID:   core.TableID(table),
				TableName: name,
				TenantID:  tenantID,
				Business:  business,
				BaseURL:   baseURL,
				Decorate:  decorate,
			})
			if err != nil {
				return err
			}
			if out == "" {
				out = "table-" + string(code.TableID) + "-qr.png"
			}
			if err := os.WriteFile(out, code.PNG, 0644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", code.Link, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "table id")
	cmd.Flags().StringVar(&name, "name", "", "table display name")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id to embed in the link")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "override server.base_url")
	cmd.Flags().StringVar(&business, "business", "", "business name printed above the table name")
	cmd.Flags().StringVar(&out, "out", "", "output file (default table-<id>-qr.png)")
	cmd.Flags().IntVar(&size, "size", 0, "code size in pixels (default qr.size)")
	cmd.Flags().BoolVar(&decorate, "decorate", false, "add table name, scan text and footer")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
