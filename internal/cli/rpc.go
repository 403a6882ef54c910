package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fanvault/tokend/internal/di"
	"github.com/fanvault/tokend/internal/rpc"
	"github.com/fanvault/tokend/internal/version"
)

// rpcCmd executes RPC methods locally by calling the same handlers used
// by the server, against the configured store. The local caller holds
// the admin role.
var rpcCmd = &cobra.Command{
	Use:   "rpc <method> [params-json]",
	Short: "Execute an RPC method against the local store",
	Long: `Execute an RPC method locally by calling the same handler the server
dispatches to, operating directly on the configured store. Parameters
are given as a single JSON object.

Examples:
  tokend rpc balance '{"userId": "user-1"}'
  tokend rpc credit_paid '{"userId": "user-1", "amount": 100, "purpose": "signup"}'
  tokend rpc server_info`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRPC,
}

// rpcListCmd prints the method table.
var rpcListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available RPC methods",
	RunE:  runRPCList,
}

func init() {
	rootCmd.AddCommand(rpcCmd)
	rpcCmd.AddCommand(rpcListCmd)
}

func localServer() (*rpc.Server, *di.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	container := di.New()
	provider := di.NewProvider(container, cfg)
	if err := provider.RegisterAll(); err != nil {
		return nil, nil, err
	}

	svc, err := provider.Ledger()
	if err != nil {
		container.Close()
		return nil, nil, err
	}
	log, err := provider.Logger()
	if err != nil {
		container.Close()
		return nil, nil, err
	}

	server := rpc.NewServer(svc, rpc.Config{
		Timeout:  cfg.Server.RPCTimeout(),
		Version:  version.Version,
		AdminIPs: []string{"127.0.0.1"},
	}, log, nil)
	return server, container, nil
}

func runRPC(cmd *cobra.Command, args []string) error {
	method := args[0]
	var params json.RawMessage
	if len(args) > 1 {
		if !json.Valid([]byte(args[1])) {
			return fmt.Errorf("parameters are not valid JSON: %s", args[1])
		}
		params = json.RawMessage(args[1])
	}

	server, container, err := localServer()
	if err != nil {
		return err
	}
	defer container.Close()

	handler, exists := server.Registry().Get(method)
	if !exists {
		return fmt.Errorf("unknown method: %s (try 'tokend rpc list')", method)
	}

	rpcCtx := &rpc.Context{
		Context:  context.Background(),
		Role:     rpc.RoleAdmin,
		ClientIP: "127.0.0.1",
	}

	result, rpcErr := handler.Handle(rpcCtx, params)
	if rpcErr != nil {
		return fmt.Errorf("rpc error [%d] %s: %s", rpcErr.Code, rpcErr.ErrorString, rpcErr.Message)
	}

	pretty, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Printf("%+v\n", result)
		return nil
	}
	fmt.Println(string(pretty))
	return nil
}

func runRPCList(cmd *cobra.Command, args []string) error {
	server, container, err := localServer()
	if err != nil {
		return err
	}
	defer container.Close()

	names := server.Registry().List()
	fmt.Printf("%d methods:\n", len(names))
	for _, name := range names {
		handler, _ := server.Registry().Get(name)
		var notes []string
		if handler.RequiredRole() >= rpc.RoleAdmin {
			notes = append(notes, "admin")
		}
		if handler.ReadOnly() {
			notes = append(notes, "read-only")
		}
		if len(notes) > 0 {
			fmt.Printf("  %-28s (%s)\n", name, strings.Join(notes, ", "))
		} else {
			fmt.Printf("  %s\n", name)
		}
	}
	return nil
}
