// Package main implements manifestctl, a command-line tool for
// validating and managing module manifests (C7), adapted from the
// teacher's migration CLI: a CLI struct wrapping cobra subcommands,
// each built by a private method that returns a *cobra.Command.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ipiton-systems/autodev-engine/internal/registry"
)

// CLI wraps the module registry operations manifestctl exposes. Each
// subcommand builds its own scratch registry from the manifest paths
// it is given, since manifestctl operates on manifest files directly
// rather than a persisted install index.
type CLI struct {
	logger *slog.Logger
}

// NewCLI builds a CLI.
func NewCLI(logger *slog.Logger) *CLI {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLI{logger: logger}
}

// GetRootCommand returns manifestctl's root command.
func (cli *CLI) GetRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "manifestctl",
		Short: "Module manifest validation and management tool",
		Long:  "Validates module manifests, checks dependency graphs for cycles, and renders install order.",
	}

	root.AddCommand(
		cli.validateCommand(),
		cli.graphCommand(),
		cli.orderCommand(),
		cli.formatCommand(),
	)

	return root
}

// validateCommand parses each manifest path given, reporting parse
// errors, then registers all of them together to surface dependency
// cycles and missing dependencies across the whole set.
func (cli *CLI) validateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest.toml>...",
		Short: "Validate one or more manifest files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := cli.registerAll(args); err != nil {
				return err
			}
			fmt.Printf("%d manifest(s) valid, no dependency cycles\n", len(args))
			return nil
		},
	}
	return cmd
}

// graphCommand prints the dependency graph in Graphviz DOT format.
func (cli *CLI) graphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <manifest.toml>...",
		Short: "Render the dependency graph as Graphviz DOT",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := cli.registerAll(args)
			if err != nil {
				return err
			}
			fmt.Println(reg.ExportDependencyGraph())
			return nil
		},
	}
	return cmd
}

// orderCommand prints a topological install order for the given
// manifests, or reports the cycle blocking one.
func (cli *CLI) orderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order <manifest.toml>...",
		Short: "Print a valid install order for the given manifests",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := cli.registerAll(args)
			if err != nil {
				return err
			}
			order, err := reg.ResolveOrder()
			if err != nil {
				return fmt.Errorf("resolving install order: %w", err)
			}
			for i, id := range order {
				fmt.Printf("%d. %s\n", i+1, id)
			}
			return nil
		},
	}
	return cmd
}

// formatCommand rewrites a manifest file in canonical TOML form,
// round-tripping it through LoadManifest/SaveManifest.
func (cli *CLI) formatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "format <manifest.toml>",
		Short: "Rewrite a manifest file in canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			m, err := registry.LoadManifest(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := registry.SaveManifest(path, m); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			fmt.Printf("%s formatted\n", path)
			return nil
		},
	}
	return cmd
}

// registerAll loads and registers every manifest path into a fresh
// registry, so a cycle introduced by one command invocation never
// leaks into the next.
func (cli *CLI) registerAll(paths []string) (*registry.Registry, error) {
	reg := registry.New(cli.logger)
	for _, path := range paths {
		m, err := registry.LoadManifest(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := reg.Register(m); err != nil {
			return nil, fmt.Errorf("registering %s: %w", m.Module.ID, err)
		}
	}
	return reg, nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cli := NewCLI(logger)

	if err := cli.GetRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
