package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/qrave1/TalkRooms/internal/domain/events"
	"github.com/qrave1/TalkRooms/internal/infra/ports/wsclient"
)

var probeFlags struct {
	url   string
	room  string
	user  string
	name  string
	token string
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Join a room over websocket and print received events",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()

		client, err := wsclient.Dial(ctx, probeFlags.url, probeFlags.token)
		if err != nil {
			return err
		}
		defer client.Close()

		go func() {
			<-ctx.Done()
			client.Close()
		}()

		roster, err := wsclient.JoinWithRetry(ctx, client, events.JoinEvent{
			RoomID:      probeFlags.room,
			UserID:      probeFlags.user,
			DisplayName: probeFlags.name,
		}, wsclient.DefaultJoinBackoff())
		if err != nil {
			if errors.Is(err, wsclient.ErrGaveUp) {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			return err
		}

		printEvent(cmd, roster)

		for {
			msg, err := client.Read()
			if err != nil {
				if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					return nil
				}

				return err
			}

			printEvent(cmd, msg)
		}
	},
}

func printEvent(cmd *cobra.Command, msg *events.Message) {
	cmd.Printf("%s %s\n", msg.Type, string(msg.Data))
}

func init() {
	probeCmd.Flags().StringVar(&probeFlags.url, "url", "ws://localhost:3000/api/v1/ws", "websocket endpoint")
	probeCmd.Flags().StringVar(&probeFlags.room, "room", "", "room id")
	probeCmd.Flags().StringVar(&probeFlags.user, "user", "", "user id, defaults to the token subject")
	probeCmd.Flags().StringVar(&probeFlags.name, "name", "probe", "display name")
	probeCmd.Flags().StringVar(&probeFlags.token, "token", "", "JWT sent as a Bearer token")

	_ = probeCmd.MarkFlagRequired("room")

	rootCmd.AddCommand(probeCmd)
}
