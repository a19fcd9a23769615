package main

import (
	"fmt"

	"github.com/pr0ta9/genesis/internal/config"
	"github.com/pr0ta9/genesis/internal/pathtool"
	"github.com/pr0ta9/genesis/internal/sandbox"
	"github.com/pr0ta9/genesis/internal/wftype"
)

// registerPluginTools spawns every configured plugin binary and registers
// its handler into reg as an ordinary PathTool, indistinguishable to the
// planner and executor from a built-in one. The returned close func kills
// every spawned subprocess and must run on shutdown; on a registration
// failure partway through, already-spawned plugins are killed before the
// error is returned so a bad config entry never leaks a process.
func registerPluginTools(reg *pathtool.ToolRegistry, plugins []config.PluginToolConfig) (func(), error) {
	loader := sandbox.NewLoader()
	closers := make([]func(), 0, len(plugins))
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	for _, p := range plugins {
		params := make([]pathtool.Parameter, 0, len(p.Parameters))
		for _, param := range p.Parameters {
			params = append(params, pathtool.Parameter{
				Name:     param.Name,
				Type:     param.Type,
				Required: param.Required,
			})
		}

		stub := &pathtool.PathTool{
			ToolName:   p.Name,
			InputType:  wftype.Type(p.InputType),
			OutputType: wftype.Type(p.OutputType),
			Parameters: params,
		}

		wrapped, closeFn, err := sandbox.Wrap(stub, loader, p.BinaryPath)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("register plugin tool %q: %w", p.Name, err)
		}
		closers = append(closers, closeFn)

		if err := reg.RegisterPathTool(wrapped); err != nil {
			closeAll()
			return nil, fmt.Errorf("register plugin tool %q: %w", p.Name, err)
		}
	}

	return closeAll, nil
}
