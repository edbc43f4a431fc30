package commands

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/procbridge/coworker/internal/bytesize"
	"github.com/procbridge/coworker/internal/codec"
	"github.com/procbridge/coworker/internal/frame"
	"github.com/procbridge/coworker/internal/protocol"
)

var (
	healthSocketPath string
	healthTimeout    time.Duration
)

var healthCheckCmd = &cobra.Command{
	Use:   "health-check",
	Short: "Check whether a running coworker process is responsive",
	Long: `Dial a running coworker process's socket, send a single "health" request,
and print the decoded response. Exits non-zero if the dial, round trip, or
decode fails.`,
	RunE: runHealthCheck,
}

func init() {
	healthCheckCmd.Flags().StringVar(&healthSocketPath, "socket-path", "", "Unix domain socket path to dial (required)")
	healthCheckCmd.Flags().DurationVar(&healthTimeout, "timeout", 5*time.Second, "dial and round-trip timeout")
}

func runHealthCheck(cmd *cobra.Command, args []string) error {
	if healthSocketPath == "" {
		return fmt.Errorf("--socket-path is required")
	}

	nc, err := net.DialTimeout("unix", healthSocketPath, healthTimeout)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", healthSocketPath, err)
	}
	defer nc.Close()
	_ = nc.SetDeadline(time.Now().Add(healthTimeout))

	c, err := codec.Resolve("json")
	if err != nil {
		return err
	}
	fc := frame.New(nc, bytesize.ByteSize(0), nil)

	req := protocol.Request{ID: 1, Method: "health", Body: nil}
	data, err := c.Encode(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	if err := fc.WriteFrame(data); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}

	respData, err := fc.ReadFrame()
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var resp protocol.Response
	if err := c.Decode(respData, &resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !resp.OK {
		return fmt.Errorf("worker reported unhealthy: %s", resp.Error)
	}

	out, err := json.MarshalIndent(resp.Body, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render response: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
