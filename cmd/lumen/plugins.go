// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lumenlauncher/lumen/internal/config"
	"github.com/lumenlauncher/lumen/internal/plugin"
	"github.com/lumenlauncher/lumen/internal/registry"
)

// NewPluginsCmd creates the plugins subcommand group.
func NewPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Manage installed plugins",
	}

	cmd.AddCommand(newPluginsListCmd())
	cmd.AddCommand(newPluginsEnableCmd())
	cmd.AddCommand(newPluginsDisableCmd())
	cmd.AddCommand(newPluginsUninstallCmd())
	cmd.AddCommand(newPluginsInstallCmd())
	cmd.AddCommand(newPluginsSearchCmd())
	cmd.AddCommand(newPluginsDownloadCmd())

	return cmd
}

func loadCLIConfig() (config.Config, error) {
	cfgPath := configFile
	if cfgPath == "" {
		cfgPath = config.DefaultPath()
	}
	cfg, err := config.Load(cfgPath, nil)
	if err != nil {
		return cfg, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// scanLoader builds a Loader over the configured plugins directory and
// scans it once.
func scanLoader(cmd *cobra.Command) (*plugin.Loader, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return nil, err
	}

	loader := plugin.NewLoader(cfg.Plugins.Dir)
	if _, err := loader.Scan(cmd.Context()); err != nil {
		return nil, fmt.Errorf("failed to scan plugin catalog: %w", err)
	}
	return loader, nil
}

func newPluginsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed plugins",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, err := scanLoader(cmd)
			if err != nil {
				return err
			}

			infos := loader.List()
			if len(infos) == 0 {
				cmd.Println("no plugins installed")
				return nil
			}
			for _, info := range infos {
				state := "enabled"
				if !info.Enabled {
					state = "disabled"
				}
				cmd.Printf("%s %s (%s) [%s] permissions: %s\n",
					info.ID, info.Version, info.Name, state,
					strings.Join(info.Permissions, ", "))
			}
			return nil
		},
	}
}

func newPluginsEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <plugin-id>",
		Short: "Enable an installed plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := scanLoader(cmd)
			if err != nil {
				return err
			}
			if err := loader.Enable(args[0]); err != nil {
				return err
			}
			cmd.Printf("enabled %s\n", args[0])
			return nil
		},
	}
}

func newPluginsDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <plugin-id>",
		Short: "Disable an installed plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := scanLoader(cmd)
			if err != nil {
				return err
			}
			if err := loader.Disable(args[0]); err != nil {
				return err
			}
			cmd.Printf("disabled %s\n", args[0])
			return nil
		},
	}
}

func newPluginsUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <plugin-id>",
		Short: "Remove an installed plugin and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := scanLoader(cmd)
			if err != nil {
				return err
			}
			if err := loader.Uninstall(args[0]); err != nil {
				return err
			}
			cmd.Printf("uninstalled %s\n", args[0])
			return nil
		},
	}
}

func newPluginsInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install <dir>",
		Short: "Install a plugin from a local directory",
		Long: `Install a plugin from a local directory containing manifest.json
and the compiled module. The directory is validated and copied into the
plugin catalog.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := scanLoader(cmd)
			if err != nil {
				return err
			}
			id, err := loader.InstallFromDir(args[0])
			if err != nil {
				return err
			}
			cmd.Printf("installed %s\n", id)
			return nil
		},
	}
}

// marketplaceClient builds a registry client from the daemon config.
func marketplaceClient() (*registry.Client, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return nil, err
	}
	return registry.NewClient(cfg.RegistryCacheDir(),
		registry.WithBaseURL(cfg.Registry.URL),
	), nil
}

func newPluginsSearchCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the plugin marketplace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := marketplaceClient()
			if err != nil {
				return err
			}
			plugins, offline, err := client.Index(cmd.Context())
			if err != nil {
				return err
			}
			if offline {
				cmd.Println("warning: marketplace unreachable, showing cached index")
			}

			if len(args) > 0 {
				plugins = registry.Search(plugins, args[0])
			}
			if category != "" {
				plugins = registry.ByCategory(plugins, category)
			}
			if len(plugins) == 0 {
				cmd.Println("no plugins found")
				return nil
			}
			for _, p := range plugins {
				cmd.Printf("%s %s (%s) [%s] %d downloads\n  %s\n",
					p.ID, p.Version, p.Name, p.Category, p.Downloads, p.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	return cmd
}

func newPluginsDownloadCmd() *cobra.Command {
	var destDir string
	cmd := &cobra.Command{
		Use:   "download <plugin-id>",
		Short: "Download a plugin archive from the marketplace",
		Long: `Download a plugin archive from the marketplace and verify its
checksum. Unpack the archive and run 'lumen plugins install <dir>' to
install it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := marketplaceClient()
			if err != nil {
				return err
			}
			plugins, offline, err := client.Index(cmd.Context())
			if err != nil {
				return err
			}
			if offline {
				cmd.Println("warning: marketplace unreachable, using cached index")
			}

			for _, p := range plugins {
				if p.ID != args[0] {
					continue
				}
				path, err := client.Download(cmd.Context(), p, destDir)
				if err != nil {
					return err
				}
				cmd.Printf("downloaded %s %s to %s\n", p.ID, p.Version, path)
				return nil
			}
			return fmt.Errorf("plugin %q not found in marketplace index", args[0])
		},
	}
	cmd.Flags().StringVar(&destDir, "dir", ".", "directory to download into")
	return cmd
}
