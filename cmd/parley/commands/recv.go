package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var waitFor time.Duration

// recv: listen on the event stream and print decrypted messages.
func recvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Listen for messages and decrypt them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			sess, err := wire.Login(cmd.Context(), username, passphrase, password)
			if err != nil {
				return err
			}
			defer sess.Close()

			timeout := time.After(waitFor)
			for {
				select {
				case m, ok := <-sess.Messages():
					if !ok {
						return nil
					}
					fmt.Printf("[%s] %s: %s\n", m.Room, m.From, string(m.Plaintext))
				case <-timeout:
					return nil
				case <-cmd.Context().Done():
					return nil
				}
			}
		},
	}
	loginFlags(cmd)
	cmd.Flags().DurationVar(&waitFor, "wait", 30*time.Second, "how long to listen")
	return cmd
}
