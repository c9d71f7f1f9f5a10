package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var username string

// login is the shared preamble for commands needing a session.
func loginFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&username, "username", "", "your username (same as you registered with)")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
}

func roomsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List your rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			sess, err := wire.Login(cmd.Context(), username, passphrase, password)
			if err != nil {
				return err
			}
			defer sess.Close()

			rooms, err := wire.Relay.Rooms(cmd.Context(), sess.Token)
			if err != nil {
				return err
			}
			for _, r := range rooms {
				fmt.Printf("%s\t%s\t%s\t%d members\n", r.ID, r.Kind, r.Name, len(r.Members))
			}
			return nil
		},
	}
	loginFlags(cmd)
	return cmd
}
