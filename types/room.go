package types

// RoomInfo is the wire representation of a room, the participant set reduced
// to a list of connection ids.
type RoomInfo struct {
	Id           string   `json:"id"`
	Name         string   `json:"name"`
	CreatedBy    string   `json:"createdBy"`
	Participants []string `json:"participants"`
}
