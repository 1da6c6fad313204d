package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"goupdate/config"
	"goupdate/internal/products"
	"goupdate/internal/vercmp"
)

const (
	flagProduct = "product"
	flagHost    = "host"
	flagTarget  = "target"
	flagArch    = "arch"
	flagCurrent = "current"
	flagTimeout = "timeout"
)

// checkOutput is printed by the check command.
type checkOutput struct {
	Product   string `json:"product"`
	Current   string `json:"current_version"`
	Available bool   `json:"available"`
	Update    any    `json:"update,omitempty"`
}

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Resolve one update check against the live release source and print it as JSON",
		Example: `  goupdate check --product desktop --target darwin --arch aarch64 --current 1.4.2
  goupdate check --host cli.example.com --current 0.9.0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd)
		},
		SilenceUsage: true,
	}

	cmd.Flags().String(flagProduct, "", "product name")
	cmd.Flags().String(flagHost, "", "resolve the product bound to this host instead of --product")
	cmd.Flags().String(flagTarget, "", "client OS, e.g. darwin, linux, windows (omit for a simple check)")
	cmd.Flags().String(flagArch, "", "client architecture, e.g. x86_64, aarch64")
	cmd.Flags().String(flagCurrent, "", "version the client is running")
	cmd.Flags().Duration(flagTimeout, 30*time.Second, "how long to wait for the release source")
	cmd.MarkFlagsMutuallyExclusive(flagProduct, flagHost)
	cmd.MarkFlagsOneRequired(flagProduct, flagHost)
	cmd.MarkFlagsRequiredTogether(flagTarget, flagArch)
	_ = cmd.MarkFlagRequired(flagCurrent)
	return cmd
}

func runCheck(cmd *cobra.Command) error {
	flags := cmd.Flags()
	name, _ := flags.GetString(flagProduct)
	host, _ := flags.GetString(flagHost)
	target, _ := flags.GetString(flagTarget)
	arch, _ := flags.GetString(flagArch)
	current, _ := flags.GetString(flagCurrent)
	timeout, _ := flags.GetDuration(flagTimeout)

	if !vercmp.IsValid(current) {
		return fmt.Errorf("invalid current version %q", current)
	}

	// Logs go to stderr so stdout carries only the result.
	result, err := loadConfig(cmd, os.Stderr)
	if err != nil {
		return err
	}
	cfg, err := singleProductConfig(result.Config, name, host)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	initResult, err := products.Init(ctx, cfg, products.InitConfig{WarmTimeout: timeout})
	if err != nil {
		return err
	}
	defer func() { _ = initResult.Close() }()

	p, ok := initResult.Registry.Lookup(cfg.Products[0].Name)
	if !ok {
		return fmt.Errorf("product %s was not registered", cfg.Products[0].Name)
	}

	out := checkOutput{Product: p.Name, Current: current}
	if target == "" {
		latest, ok := p.LatestSimple(ctx)
		if !ok {
			return fmt.Errorf("product %s: unable to fetch release", p.Name)
		}
		decision := initResult.Changelogs.ResolveSimple(latest, p.Notes, current)
		out.Available = decision.Available
		if decision.Available {
			out.Update = decision.Release
		}
	} else {
		latest, ok, err := p.Latest(ctx)
		if err != nil {
			return fmt.Errorf("product %s: %w", p.Name, err)
		}
		if !ok {
			return fmt.Errorf("product %s: unable to fetch release", p.Name)
		}
		decision := initResult.Changelogs.ResolvePlatform(latest, p.Notes, current, target, arch)
		out.Available = decision.Available
		if decision.Available {
			out.Update = decision.Update
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// singleProductConfig narrows cfg to the product selected by name or host,
// with background refresh disabled.
func singleProductConfig(cfg *config.Config, name, host string) (*config.Config, error) {
	normalized := products.NormalizeHost(host)
	for _, pc := range cfg.Products {
		if name != "" && pc.Name == name {
			return withProduct(cfg, pc), nil
		}
		if host == "" {
			continue
		}
		for _, h := range pc.Hosts {
			if products.NormalizeHost(h) == normalized {
				return withProduct(cfg, pc), nil
			}
		}
	}
	if name != "" {
		return nil, fmt.Errorf("unknown product: %s", name)
	}
	return nil, fmt.Errorf("no product is served on host %s", normalized)
}

func withProduct(cfg *config.Config, pc config.ProductConfig) *config.Config {
	narrowed := *cfg
	narrowed.Products = []config.ProductConfig{pc}
	narrowed.Cache.RefreshInterval = 0
	return &narrowed
}
