package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tanwarat/voiceroom/globals"
	"github.com/tanwarat/voiceroom/types"
)

// A very simple CLI tool for the administration of voiceroom rooms. It is an
// ordinary protocol client: the server performs no privilege check on
// rename-room or delete-room.

var (
	serverUrl = pflag.StringP("server", "s", "ws://localhost:8080/ws", "websocket url of the voiceroom server")

	replyWait = 5 * time.Second
)

func main() {
	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show rooms",
		Args:  cobra.MinimumNArgs(0),
	}
	var cmdShowRooms = &cobra.Command{
		Use:   "rooms",
		Short: "Show rooms",
		Long:  `show rooms lists all rooms currently held by the server.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			conn, err := dial()
			if err != nil {
				globals.AppLogger.Error("could not connect", "error", err)
				return
			}
			defer conn.Close()
			err = writeMessage(conn, types.MessageTypeGetInitialData, struct{}{})
			if err != nil {
				globals.AppLogger.Error("could not send request", "error", err)
				return
			}
			msg, err := awaitMessage(conn, types.MessageTypeInitialData)
			if err != nil {
				globals.AppLogger.Error("no reply from server", "error", err)
				return
			}
			payload := types.InitialDataPayload{}
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				globals.AppLogger.Error("could not decode room list", "error", err)
				return
			}
			r, err := json.Marshal(payload.Rooms)
			if err != nil {
				globals.AppLogger.Error("could not marshal rooms", "error", err)
				return
			}
			fmt.Println(string(r))
		},
	}
	var cmdSet = &cobra.Command{
		Use:   "set",
		Short: "update a room",
		Args:  cobra.MinimumNArgs(0),
	}
	var cmdSetRoom = &cobra.Command{
		Use:   "room [room id] [new name]",
		Short: "Rename room",
		Long:  `set room renames the room with the given id. Renaming an unknown room is a no-op on the server.`,
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			conn, err := dial()
			if err != nil {
				globals.AppLogger.Error("could not connect", "error", err)
				return
			}
			defer conn.Close()
			err = writeMessage(conn, types.MessageTypeRenameRoom, types.RenameRoomPayload{RoomId: args[0], Name: args[1]})
			if err != nil {
				globals.AppLogger.Error("could not send rename", "error", err)
				return
			}
			confirmRoomUpdate(conn)
		},
	}
	var cmdDelete = &cobra.Command{
		Use:   "delete",
		Short: "delete a room",
		Args:  cobra.MinimumNArgs(0),
	}
	var cmdDeleteRoom = &cobra.Command{
		Use:   "room [room id]",
		Short: "Delete room",
		Long:  `delete room removes the room with the given id. Deleting an unknown room is a no-op on the server.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			conn, err := dial()
			if err != nil {
				globals.AppLogger.Error("could not connect", "error", err)
				return
			}
			defer conn.Close()
			err = writeMessage(conn, types.MessageTypeDeleteRoom, types.DeleteRoomPayload{RoomId: args[0]})
			if err != nil {
				globals.AppLogger.Error("could not send delete", "error", err)
				return
			}
			confirmRoomUpdate(conn)
		},
	}
	var rootCmd = &cobra.Command{Use: "voiceroom-admin"}
	rootCmd.PersistentFlags().AddFlagSet(pflag.CommandLine)
	rootCmd.AddCommand(cmdShow)
	rootCmd.AddCommand(cmdSet)
	rootCmd.AddCommand(cmdDelete)
	cmdShow.AddCommand(cmdShowRooms)
	cmdSet.AddCommand(cmdSetRoom)
	cmdDelete.AddCommand(cmdDeleteRoom)
	rootCmd.Execute()
}

func dial() (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(*serverUrl, nil)
	return conn, err
}

func writeMessage(conn *websocket.Conn, msgType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(types.WireMessage{Type: msgType, Payload: data})
}

// awaitMessage reads frames until one with the wanted type tag arrives.
// Broadcasts of other types may be interleaved on the connection.
func awaitMessage(conn *websocket.Conn, msgType string) (*types.WireMessage, error) {
	deadline := time.Now().Add(replyWait)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	for {
		msg := types.WireMessage{}
		if err := conn.ReadJSON(&msg); err != nil {
			return nil, err
		}
		if msg.Type == msgType {
			return &msg, nil
		}
	}
}

// confirmRoomUpdate prints the room list broadcast that follows a successful
// mutation. The protocol has no error channel: silence means the room id did
// not exist.
func confirmRoomUpdate(conn *websocket.Conn) {
	msg, err := awaitMessage(conn, types.MessageTypeRoomUpdate)
	if err != nil {
		fmt.Println("no room update received, the room id probably does not exist")
		return
	}
	payload := types.RoomUpdatePayload{}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		globals.AppLogger.Error("could not decode room update", "error", err)
		return
	}
	r, err := json.Marshal(payload.Rooms)
	if err != nil {
		globals.AppLogger.Error("could not marshal rooms", "error", err)
		return
	}
	fmt.Println(string(r))
}
