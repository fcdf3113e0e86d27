package cli

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/mithrel/nettransport/internal/endpoint"
)

func newSendCmd() *cobra.Command {
	var timeout time.Duration
	var newline bool

	cmd := &cobra.Command{
		Use:   "send <host:port> <message>",
		Short: "Send a message to a running daemon and print the echo",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)
			addr, err := net.ResolveTCPAddr("tcp4", args[0])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}
			message := []byte(args[1])
			if newline {
				message = append(message, '\n')
			}

			conn := endpoint.NewConnection(
				endpoint.WithLogger(app.Log.Named("send")),
				endpoint.WithDialTimeout(timeout),
				endpoint.WithReadBufferSize(app.Cfg.GetInt("transport.read_buffer")),
			)
			if err := conn.Connect(endpoint.AddressFromIP(addr.IP), uint16(addr.Port)); err != nil {
				return fmt.Errorf("connect %s: %w", args[0], err)
			}
			defer conn.Close(true)

			var (
				mu       sync.Mutex
				echoed   []byte
				complete = make(chan struct{})
				closed   = make(chan struct{})
			)
			err = conn.Process(func(data []byte) {
				mu.Lock()
				defer mu.Unlock()
				before := len(echoed)
				echoed = append(echoed, data...)
				if before < len(message) && len(echoed) >= len(message) {
					close(complete)
				}
			}, func(bool) { close(closed) })
			if err != nil {
				return err
			}
			conn.SendMessage(message)

			select {
			case <-complete:
			case <-closed:
			case <-time.After(timeout):
				return fmt.Errorf("no echo from %s within %s", args[0], timeout)
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}

			mu.Lock()
			out := append([]byte(nil), echoed...)
			mu.Unlock()
			if len(out) == 0 {
				return fmt.Errorf("connection closed by %s before any echo", args[0])
			}
			_, _ = cmd.OutOrStdout().Write(out)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "dial and echo timeout")
	cmd.Flags().BoolVarP(&newline, "newline", "n", true, "terminate the message with a newline")
	return cmd
}
