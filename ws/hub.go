package ws

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/folkengine/goname"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/robfig/cron/v3"
	"github.com/tanwarat/voiceroom/config"
	"github.com/tanwarat/voiceroom/globals"
	"github.com/tanwarat/voiceroom/types"
)

// Participant is a display-named occupant of a room, tied 1:1 to a live
// connection.
type Participant struct {
	Client      *Client
	DisplayName string
}

// Room is a server-held grouping of participants sharing signaling and
// transcript events. Room records are owned exclusively by the hub worker.
type Room struct {
	Id           string
	Name         string
	CreatedBy    string
	CreatedAt    time.Time
	Participants map[string]*Participant // keyed by connection id
}

// frame is an inbound wire message together with the connection it arrived on.
type frame struct {
	client *Client
	msg    types.WireMessage
}

// Hub owns all room state. Every mutation and every broadcast decision runs
// on the single goroutine executing Run, which gives commands from
// concurrently connected clients one total order.
type Hub struct {
	cfg *config.Config

	// all live connections, keyed by connection id
	clients map[string]*Client

	// the room store
	rooms map[string]*Room

	// Register a new connection with the hub.
	Register chan *Client

	// Unregister a connection from the hub. Treated like a leave-room for
	// the connection's current room.
	Unregister chan *Client

	// decoded frames from the per-connection read pumps
	inbound chan frame

	// ticks from the optional empty-room reaper
	reap chan struct{}
}

func NewHub(cfg *config.Config) *Hub {
	return &Hub{
		cfg:        cfg,
		clients:    make(map[string]*Client),
		rooms:      make(map[string]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		inbound:    make(chan frame),
		reap:       make(chan struct{}, 1),
	}
}

// Run is the main hub event loop handling register, unregister and inbound
// command frames.
func (h *Hub) Run() {
	if h.cfg.ReaperConfig.Enable {
		cronRunner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
		_, err := cronRunner.AddFunc(h.cfg.ReaperConfig.Schedule, func() {
			select {
			case h.reap <- struct{}{}:
			default:
			}
		})
		if err != nil {
			globals.AppLogger.Error("could not schedule room reaper", "error", err)
		} else {
			cronRunner.Start()
			defer cronRunner.Stop()
		}
	}
	for {
		select {
		case client := <-h.Register:
			globals.AppLogger.Debug("register new connection", "connection", client.Id)
			h.clients[client.Id] = client

		case client := <-h.Unregister:
			h.removeClient(client)

		case f := <-h.inbound:
			h.route(f.client, f.msg)

		case <-h.reap:
			h.reapEmptyRooms()
		}
	}
}

// route dispatches one decoded frame to its handler. Frames with unknown
// type tags or undecodable payloads are dropped without a reply, the
// connection stays open.
func (h *Hub) route(c *Client, msg types.WireMessage) {
	switch msg.Type {
	case types.MessageTypeGetInitialData:
		data, err := marshalMessage(types.MessageTypeInitialData, types.InitialDataPayload{Rooms: h.roomList()})
		if err != nil {
			globals.AppLogger.Error("could not marshal initial data", "error", err)
			return
		}
		h.send(c, data)

	case types.MessageTypeCreateRoom:
		payload := types.CreateRoomPayload{}
		if err := decodePayload(msg.Payload, &payload); err != nil {
			globals.AppLogger.Debug("could not decode create-room payload", "connection", c.Id, "error", err)
			return
		}
		h.createRoom(payload.Name, payload.CreatedBy)

	case types.MessageTypeJoinRoom:
		payload := types.JoinRoomPayload{}
		if err := decodePayload(msg.Payload, &payload); err != nil {
			globals.AppLogger.Debug("could not decode join-room payload", "connection", c.Id, "error", err)
			return
		}
		h.joinRoom(c, payload.RoomId, payload.DisplayName)

	case types.MessageTypeLeaveRoom:
		// the connection's tracked room is authoritative, a roomId in the
		// payload is not consulted
		h.leaveRoom(c)

	case types.MessageTypeRenameRoom:
		payload := types.RenameRoomPayload{}
		if err := decodePayload(msg.Payload, &payload); err != nil {
			globals.AppLogger.Debug("could not decode rename-room payload", "connection", c.Id, "error", err)
			return
		}
		h.renameRoom(payload.RoomId, payload.Name)

	case types.MessageTypeDeleteRoom:
		payload := types.DeleteRoomPayload{}
		if err := decodePayload(msg.Payload, &payload); err != nil {
			globals.AppLogger.Debug("could not decode delete-room payload", "connection", c.Id, "error", err)
			return
		}
		h.deleteRoom(payload.RoomId)

	case types.MessageTypeSendTranscription:
		h.relayTranscription(c, msg.Payload)

	case types.MessageTypeSignal:
		payload := types.SignalPayload{}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			globals.AppLogger.Debug("could not decode signal payload", "connection", c.Id, "error", err)
			return
		}
		h.relaySignal(c, payload)

	default:
		globals.AppLogger.Debug("unknown message type", "connection", c.Id, "type", msg.Type)
	}
}

// createRoom inserts a new room with no participants and announces the new
// room list to every connection.
func (h *Hub) createRoom(name, createdBy string) string {
	id := "room_" + uuid.NewString()
	h.rooms[id] = &Room{
		Id:           id,
		Name:         name,
		CreatedBy:    createdBy,
		CreatedAt:    time.Now(),
		Participants: make(map[string]*Participant),
	}
	globals.AppLogger.Info("room created", "room", id, "name", name, "createdBy", createdBy)
	h.broadcastRoomList()
	return id
}

// joinRoom adds the connection to the room's participant set. Joining an
// unknown room is a silent no-op. Joining while in another room leaves that
// room first, a connection belongs to at most one room at a time.
func (h *Hub) joinRoom(c *Client, roomId, displayName string) {
	room, ok := h.rooms[roomId]
	if !ok {
		globals.AppLogger.Debug("join for unknown room", "connection", c.Id, "room", roomId)
		return
	}
	if c.RoomId != "" && c.RoomId != roomId {
		h.leaveRoom(c)
	}
	if displayName == "" {
		displayName = goname.New(goname.FantasyMap).FirstLast() + " (guest)"
	}
	c.RoomId = roomId
	room.Participants[c.Id] = &Participant{Client: c, DisplayName: displayName}
	globals.AppLogger.Info("participant joined", "room", roomId, "connection", c.Id, "displayName", displayName)
	h.broadcastParticipants(room)
}

// leaveRoom removes the connection from its current room, if any. If the
// room becomes empty as a direct result it is deleted, and the global room
// list is announced instead of the participant update.
func (h *Hub) leaveRoom(c *Client) {
	roomId := c.RoomId
	if roomId == "" {
		return
	}
	c.RoomId = ""
	room, ok := h.rooms[roomId]
	if !ok {
		return
	}
	if _, ok := room.Participants[c.Id]; !ok {
		return
	}
	delete(room.Participants, c.Id)
	globals.AppLogger.Info("participant left", "room", roomId, "connection", c.Id)
	if len(room.Participants) == 0 {
		delete(h.rooms, roomId)
		globals.AppLogger.Info("room deleted, last participant left", "room", roomId)
		h.broadcastRoomList()
		return
	}
	h.broadcastParticipants(room)
}

func (h *Hub) renameRoom(roomId, name string) {
	room, ok := h.rooms[roomId]
	if !ok {
		return
	}
	room.Name = name
	globals.AppLogger.Info("room renamed", "room", roomId, "name", name)
	h.broadcastRoomList()
}

func (h *Hub) deleteRoom(roomId string) {
	room, ok := h.rooms[roomId]
	if !ok {
		return
	}
	for _, p := range room.Participants {
		p.Client.RoomId = ""
	}
	delete(h.rooms, roomId)
	globals.AppLogger.Info("room deleted", "room", roomId)
	h.broadcastRoomList()
}

// relayTranscription fans a transcription payload out to all current
// participants of the sender's room, unmodified. Senders not joined to any
// room are ignored.
func (h *Hub) relayTranscription(c *Client, payload json.RawMessage) {
	if c.RoomId == "" {
		return
	}
	room, ok := h.rooms[c.RoomId]
	if !ok {
		return
	}
	data, err := json.Marshal(types.WireMessage{Type: types.MessageTypeNewTranscription, Payload: payload})
	if err != nil {
		globals.AppLogger.Error("could not marshal transcription", "error", err)
		return
	}
	h.relayToRoom(room, data)
}

// relaySignal forwards an opaque signaling blob to exactly one named peer in
// the sender's room. Unknown targets (wrong room, already left) are silently
// dropped, the protocol has no error channel.
func (h *Hub) relaySignal(c *Client, payload types.SignalPayload) {
	if c.RoomId == "" || payload.To == "" {
		return
	}
	room, ok := h.rooms[c.RoomId]
	if !ok {
		return
	}
	target, ok := room.Participants[payload.To]
	if !ok {
		globals.AppLogger.Debug("signal for unknown target", "connection", c.Id, "target", payload.To)
		return
	}
	data, err := marshalMessage(types.MessageTypeSignal, types.SignalRelayPayload{From: c.Id, Signal: payload.Signal})
	if err != nil {
		globals.AppLogger.Error("could not marshal signal", "error", err)
		return
	}
	h.send(target.Client, data)
}

// removeClient is the close path of a connection: it behaves exactly like a
// leave-room for the connection's current room, then drops the connection
// from the registry.
func (h *Hub) removeClient(c *Client) {
	if _, ok := h.clients[c.Id]; !ok {
		return
	}
	h.leaveRoom(c)
	delete(h.clients, c.Id)
	close(c.Send)
	globals.AppLogger.Debug("unregister connection", "connection", c.Id)
}

// reapEmptyRooms deletes rooms which never gained a participant and are
// older than the configured grace period. Rooms emptied by a leave are
// already deleted on the spot, so only never-joined rooms can show up here.
func (h *Hub) reapEmptyRooms() {
	cutoff := time.Now().Add(-h.cfg.ReaperConfig.Grace)
	changed := false
	for id, room := range h.rooms {
		if len(room.Participants) == 0 && room.CreatedAt.Before(cutoff) {
			delete(h.rooms, id)
			changed = true
			globals.AppLogger.Info("room reaped, never gained a participant", "room", id)
		}
	}
	if changed {
		h.broadcastRoomList()
	}
}

// roomList snapshots the room store for the wire, each participant set
// reduced to its connection ids.
func (h *Hub) roomList() []*types.RoomInfo {
	rooms := make([]*types.RoomInfo, 0, len(h.rooms))
	for _, room := range h.rooms {
		ids := make([]string, 0, len(room.Participants))
		for id := range room.Participants {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		rooms = append(rooms, &types.RoomInfo{
			Id:           room.Id,
			Name:         room.Name,
			CreatedBy:    room.CreatedBy,
			Participants: ids,
		})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Id < rooms[j].Id })
	return rooms
}

// broadcastRoomList sends the current room list to every live connection,
// not just room members: any client might be viewing the room directory.
func (h *Hub) broadcastRoomList() {
	data, err := marshalMessage(types.MessageTypeRoomUpdate, types.RoomUpdatePayload{Rooms: h.roomList()})
	if err != nil {
		globals.AppLogger.Error("could not marshal room list", "error", err)
		return
	}
	for _, c := range h.clients {
		h.send(c, data)
	}
}

// broadcastParticipants sends the room's participant id list to the current
// participants of that room only.
func (h *Hub) broadcastParticipants(room *Room) {
	ids := make([]string, 0, len(room.Participants))
	for id := range room.Participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	data, err := marshalMessage(types.MessageTypeParticipantUpdate, types.ParticipantUpdatePayload{RoomId: room.Id, Participants: ids})
	if err != nil {
		globals.AppLogger.Error("could not marshal participant list", "error", err)
		return
	}
	h.relayToRoom(room, data)
}

func (h *Hub) relayToRoom(room *Room, data []byte) {
	for _, p := range room.Participants {
		h.send(p.Client, data)
	}
}

// send hands a fully-formed message to the connection's write pump. The send
// never blocks the hub worker: a recipient whose buffer is full is skipped,
// dead connections are only ever reached via h.clients and are removed from
// there before their channel is closed.
func (h *Hub) send(c *Client, data []byte) {
	select {
	case c.Send <- data:
	default:
		globals.AppLogger.Warn("send buffer full, dropping message", "connection", c.Id)
	}
}

// decodePayload weakly decodes a raw JSON payload object into a typed
// payload struct.
func decodePayload(raw json.RawMessage, out interface{}) error {
	payloadMap := make(map[string]interface{})
	if err := json.Unmarshal(raw, &payloadMap); err != nil {
		return err
	}
	return mapstructure.WeakDecode(payloadMap, out)
}

func marshalMessage(msgType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(types.WireMessage{Type: msgType, Payload: data})
}
