// Command sdfwctl is a thin IPC client for sdfw-core, standing in for the
// graphical control surface: every subcommand sends one framed JSON
// request over the local socket and prints the response.
package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid"
	"github.com/spf13/cobra"

	"github.com/safing/sdfw/ipc"
)

const maxMessageSize = 1 << 20

var socketPath string

func main() {
	root := &cobra.Command{
		Use:   "sdfwctl",
		Short: "Control a running sdfw-core instance over its local IPC socket",
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", defaultSocketPath(), "path to the sdfw IPC socket")

	root.AddCommand(
		statusCmd(),
		configCmd(),
		switchCmd(),
		revertCmd(),
		disableCmd(),
		testCmd(),
		flushCacheCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultSocketPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "sdfw", "sdfw.sock")
	}
	return "/var/lib/sdfw/sdfw.sock"
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current forwarder status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ipc.GetStatusResponse
			if err := roundTrip(ipc.GetStatusRequest{Envelope: newEnvelope(ipc.TypeGetStatus)}, &resp); err != nil {
				return err
			}
			fmt.Printf("status:        %s\n", resp.Status)
			if resp.ActiveProviderID != nil {
				fmt.Printf("active provider: %s (%s)\n", resp.ActiveProviderName, resp.ActiveProviderID)
			}
			fmt.Printf("temporary:     %t\n", resp.IsTemporary)
			fmt.Printf("queries:       %d\n", resp.QueriesHandled)
			if resp.LastError != "" {
				fmt.Printf("last error:    %s\n", resp.LastError)
			}
			if resp.LastHealthCheck != nil {
				fmt.Printf("last health check: %s\n", resp.LastHealthCheck.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the current settings document",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ipc.GetConfigResponse
			if err := roundTrip(ipc.GetConfigRequest{Envelope: newEnvelope(ipc.TypeGetConfig)}, &resp); err != nil {
				return err
			}
			out, err := json.MarshalIndent(resp.Settings, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func switchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <provider-id>",
		Short: "Connect to a provider without changing the stored default (use 'revert' to go back)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.FromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid provider id: %w", err)
			}
			var resp ipc.ConnectTemporaryResponse
			req := ipc.ConnectTemporaryRequest{Envelope: newEnvelope(ipc.TypeConnectTemporary), ProviderID: id}
			if err := roundTrip(req, &resp); err != nil {
				return err
			}
			return printOutcome(resp.OK, resp.Error)
		},
	}
}

func revertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revert",
		Short: "Revert to the default provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ipc.RevertToDefaultResponse
			if err := roundTrip(ipc.RevertToDefaultRequest{Envelope: newEnvelope(ipc.TypeRevertToDefault)}, &resp); err != nil {
				return err
			}
			return printOutcome(resp.OK, resp.Error)
		},
	}
}

func disableCmd() *cobra.Command {
	var restoreDNS bool
	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Stop relaying and optionally restore original adapter DNS",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ipc.DisableResponse
			req := ipc.DisableRequest{Envelope: newEnvelope(ipc.TypeDisable), RestoreOriginalDNS: restoreDNS}
			if err := roundTrip(req, &resp); err != nil {
				return err
			}
			return printOutcome(resp.OK, resp.Error)
		},
	}
	cmd.Flags().BoolVar(&restoreDNS, "restore-dns", true, "restore each adapter's original DNS configuration")
	return cmd
}

func testCmd() *cobra.Command {
	var domain string
	cmd := &cobra.Command{
		Use:   "test <provider-id>",
		Short: "Run a one-shot test query against a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.FromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid provider id: %w", err)
			}
			var resp ipc.TestProviderResponse
			req := ipc.TestProviderRequest{Envelope: newEnvelope(ipc.TypeTestProvider), ProviderID: id, TestDomain: domain}
			if err := roundTrip(req, &resp); err != nil {
				return err
			}
			if resp.OK {
				fmt.Printf("ok, %dms\n", resp.DurationMs)
				return nil
			}
			return printOutcome(resp.OK, resp.Error)
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "domain to query (defaults to example.com.)")
	return cmd
}

func flushCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush-cache",
		Short: "Flush any OS-level DNS resolver cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ipc.FlushDnsCacheResponse
			if err := roundTrip(ipc.FlushDnsCacheRequest{Envelope: newEnvelope(ipc.TypeFlushDnsCache)}, &resp); err != nil {
				return err
			}
			return printOutcome(resp.OK, resp.Error)
		},
	}
}

func printOutcome(ok bool, errMsg string) error {
	if ok {
		fmt.Println("ok")
		return nil
	}
	return fmt.Errorf("failed: %s", errMsg)
}

func newEnvelope(verb string) ipc.Envelope {
	return ipc.Envelope{Type: verb, MessageID: uuid.Must(uuid.NewV4()).String(), Timestamp: time.Now()}
}

// roundTrip dials the socket fresh for every call; sdfwctl is a
// script-friendly one-shot client, not a long-lived session.
func roundTrip(request interface{}, response interface{}) error {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close() //nolint:errcheck

	if err := conn.SetDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	var lengthPrefix [4]byte
	binary.LittleEndian.PutUint32(lengthPrefix[:], uint32(len(payload)))
	if _, err := conn.Write(lengthPrefix[:]); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	if _, err := io.ReadFull(conn, lengthPrefix[:]); err != nil {
		return fmt.Errorf("read response length: %w", err)
	}
	length := binary.LittleEndian.Uint32(lengthPrefix[:])
	if length == 0 || length > maxMessageSize {
		return fmt.Errorf("server sent an invalid response length %d", length)
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(conn, raw); err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	return json.Unmarshal(raw, response)
}
