package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pr0ta9/genesis/internal/config"
)

// ValidateCmd validates a configuration file without starting a server.
type ValidateCmd struct {
	Config      string `arg:"" name:"config" help:"Configuration file path." placeholder:"PATH"`
	Format      string `short:"f" help:"Output format: compact, json." default:"compact" enum:"compact,json"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

func (c *ValidateCmd) Run(_ context.Context) error {
	_ = config.LoadEnvFiles()

	cfg, err := config.Load(c.Config)
	if err != nil {
		return c.printResult(false, err)
	}

	if c.PrintConfig {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	}

	return c.printResult(true, nil)
}

func (c *ValidateCmd) printResult(valid bool, err error) error {
	switch c.Format {
	case "json":
		out := map[string]any{"valid": valid, "file": c.Config}
		if err != nil {
			out["error"] = err.Error()
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		if valid {
			fmt.Printf("%s: valid\n", c.Config)
		} else {
			fmt.Fprintf(os.Stderr, "%s: %v\n", c.Config, err)
		}
	}
	if !valid {
		return fmt.Errorf("configuration invalid")
	}
	return nil
}
