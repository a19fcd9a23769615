// Package sandbox isolates a PathTool handler in a separate OS process
// using hashicorp/go-plugin, the "sandboxed invocation" the executor's
// binding/invoke step requires for untrusted or resource-heavy tool
// binaries. Grounded on the teacher's pkg/plugins/grpc loader (handshake
// config, plugin.Client lifecycle, logger wiring) but net/rpc-based
// rather than gRPC: a tool handler's contract (bytes + args in, bytes
// out) fits go-plugin's simpler RPC path without needing a protobuf
// service definition per tool.
package sandbox

import (
	"context"
	"fmt"
	"net/rpc"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/pr0ta9/genesis/internal/pathtool"
)

// HandshakeConfig is shared between this process and any tool plugin
// binary it spawns; both sides must agree on it before a connection is
// established.
var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "GENESIS_TOOL_PLUGIN",
	MagicCookieValue: "genesis-path-tool",
}

// Invoke is the RPC-exposed method a tool plugin binary implements.
type Invoke struct {
	Input []byte
	Args  map[string]any
}

// HandlerRPC is the net/rpc client stub the host process calls into.
type HandlerRPC struct{ client *rpc.Client }

func (h *HandlerRPC) Call(ctx context.Context, input []byte, args map[string]any) ([]byte, error) {
	var resp []byte
	err := h.client.Call("Plugin.Invoke", Invoke{Input: input, Args: args}, &resp)
	if err != nil {
		return nil, fmt.Errorf("sandbox: rpc invoke: %w", err)
	}
	return resp, nil
}

// HandlerRPCServer is the server side a tool plugin binary registers;
// Impl is the real handler function running inside the plugin process.
type HandlerRPCServer struct {
	Impl pathtool.Handler
}

func (s *HandlerRPCServer) Invoke(args Invoke, resp *[]byte) error {
	out, err := s.Impl(context.Background(), args.Input, args.Args)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

// HandlerPlugin is the go-plugin.Plugin implementation shared by host
// and plugin binaries.
type HandlerPlugin struct {
	Impl pathtool.Handler // set only on the plugin-binary side
}

func (p *HandlerPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &HandlerRPCServer{Impl: p.Impl}, nil
}

func (p *HandlerPlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &HandlerRPC{client: c}, nil
}

// pluginMap is the single tool-handler plugin type this protocol ships;
// go-plugin requires a name even with one entry.
var pluginMap = map[string]plugin.Plugin{
	"tool_handler": &HandlerPlugin{},
}

// Loader spawns and manages out-of-process tool handler plugins; each
// Load call starts its own client, closed via the returned Handle's
// Close when the handler is no longer needed.
type Loader struct {
	logger hclog.Logger
}

func NewLoader() *Loader {
	return &Loader{
		logger: hclog.New(&hclog.LoggerOptions{
			Name:  "genesis-tool-plugin",
			Level: hclog.Warn,
		}),
	}
}

// Handle wraps a spawned plugin process in a pathtool.Handler plus a
// close func the caller must invoke once the handler will no longer be
// called, killing the subprocess.
type Handle struct {
	Handler pathtool.Handler
	Close   func()
}

// Load spawns binaryPath as a tool-handler plugin and returns a Handle
// whose Handler proxies every call into the subprocess via RPC.
func (l *Loader) Load(binaryPath string) (*Handle, error) {
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         pluginMap,
		Cmd:             exec.Command(binaryPath),
		Logger:          l.logger,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("sandbox: start plugin %q: %w", binaryPath, err)
	}

	raw, err := rpcClient.Dispense("tool_handler")
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("sandbox: dispense plugin %q: %w", binaryPath, err)
	}

	proxy, ok := raw.(*HandlerRPC)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("sandbox: plugin %q did not return a tool handler", binaryPath)
	}

	return &Handle{
		Handler: proxy.Call,
		Close:   client.Kill,
	}, nil
}

// Wrap returns a copy of t whose handler runs inside binaryPath's
// subprocess instead of t's original HandlerFunc. The executor calls
// PathTool.Call uniformly either way.
func Wrap(t *pathtool.PathTool, loader *Loader, binaryPath string) (*pathtool.PathTool, func(), error) {
	handle, err := loader.Load(binaryPath)
	if err != nil {
		return nil, nil, err
	}
	wrapped := *t
	wrapped.HandlerFunc = handle.Handler
	return &wrapped, handle.Close, nil
}
