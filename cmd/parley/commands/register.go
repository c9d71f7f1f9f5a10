package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var password string

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Publish your public key to the relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			if err := wire.Identity.Register(cmd.Context(), passphrase, args[0], password); err != nil {
				return err
			}
			fmt.Println("Registered with relay")
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
