package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tanwarat/voiceroom/globals"
	"github.com/tanwarat/voiceroom/types"
)

const (
	maxMessageSize  = 64 * 1024 // enough for WebRTC SDP blobs
	pongWait        = 2 * time.Minute
	pingPeriod      = time.Minute
	writeWait       = 10 * time.Second
	sendChannelSize = 256
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Id is the ephemeral connection identifier assigned at handshake time.
	// It is not stable across reconnects.
	Id string

	// RoomId is the id of the currently joined room, empty if none.
	// Owned by the hub worker, read and written only from Hub.Run.
	RoomId string

	// Buffered channel of outbound messages, closed by the hub on unregister.
	Send chan []byte
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		Id:   uuid.NewString(),
		Send: make(chan []byte, sendChannelSize),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Debug("ws closed unexpectedly", "connection", c.Id, "error", err)
			}
			return
		}

		msg := types.WireMessage{}
		err = json.Unmarshal(raw, &msg)
		if err != nil {
			// malformed frames are dropped, the connection stays open
			globals.AppLogger.Debug("could not unmarshal ws message", "connection", c.Id, "error", err)
			continue
		}

		c.hub.inbound <- frame{client: c, msg: msg}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				globals.AppLogger.Debug("could not write to ws connection, exiting write pump", "connection", c.Id, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				globals.AppLogger.Debug("could not send ping message, exiting write pump", "connection", c.Id)
				return
			}
		}
	}
}
