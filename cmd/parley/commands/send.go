package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"parley/internal/domain"
)

// send <room|@peer> <message>: encrypt and send a message. A target
// starting with "@" requests the direct room with that peer first.
func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <room|@peer> <message>",
		Short: "Encrypt and send a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			sess, err := wire.Login(cmd.Context(), username, passphrase, password)
			if err != nil {
				return err
			}
			defer sess.Close()

			target := args[0]
			var roomID domain.RoomID
			if peer, ok := strings.CutPrefix(target, "@"); ok {
				room, err := sess.DirectRoom(cmd.Context(), domain.UserID(peer))
				if err != nil {
					return err
				}
				roomID = room.ID
			} else {
				roomID = domain.RoomID(target)
				if err := sess.SetActiveRoom(roomID); err != nil {
					return err
				}
			}

			if _, err := sess.Send(cmd.Context(), roomID, []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("sent")
			return nil
		},
	}
	loginFlags(cmd)
	return cmd
}
