package main

import (
	"context"

	"github.com/spf13/cobra"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"obelus/internal/launch"
	"obelus/internal/logging"
	"obelus/internal/mcp"
)

var serveFlags struct {
	cfg launch.Config
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout so an agent client can launch
workflows and poll their status through tool calls.

The server monitors for parent process death. When the client disconnects,
the server self-terminates to prevent zombie processes.`,
	RunE: runServe,
}

func init() {
	addLaunchFlags(serveCmd, &serveFlags.cfg)
}

func runServe(cmd *cobra.Command, _ []string) error {
	srv := mcp.NewServer(serveFlags.cfg)
	defer srv.Shutdown()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mcp.WatchParent(ctx, cancel)

	logging.New("mcp").Info("starting obelus MCP server over stdio (parent watchdog active)")
	return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
