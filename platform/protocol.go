package platform

import (
	"encoding/json"

	"github.com/nicebartender/roombot/space"
)

// frame is the type-peek for every message on the wire.
type frame struct {
	Type    string `json:"_type"`
	RID     string `json:"rid,omitempty"`
	Message string `json:"message,omitempty"`
}

type wireUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (u wireUser) entity() space.Entity {
	return space.Entity{ID: u.ID, Name: u.Username}
}

// wirePosition also covers anchored positions (sitting on furniture),
// which carry an entity_id instead of coordinates.
type wirePosition struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Facing   string  `json:"facing,omitempty"`
	EntityID string  `json:"entity_id,omitempty"`
}

func (p wirePosition) position() space.Position {
	return space.Position{X: p.X, Y: p.Y, Z: p.Z, Facing: space.Facing(p.Facing)}
}

func (p wirePosition) anchored() bool { return p.EntityID != "" }

func toWire(p space.Position) wirePosition {
	return wirePosition{X: p.X, Y: p.Y, Z: p.Z, Facing: string(p.Facing)}
}

// Requests carry only their own fields; encodeRequest adds _type and rid.

type request interface {
	name() string
}

type getRoomUsersRequest struct{}

func (getRoomUsersRequest) name() string { return "GetRoomUsers" }

type teleportRequest struct {
	UserID      string       `json:"user_id"`
	Destination wirePosition `json:"destination"`
}

func (teleportRequest) name() string { return "Teleport" }

type floorHitRequest struct {
	Destination wirePosition `json:"destination"`
}

func (floorHitRequest) name() string { return "FloorHit" }

type emoteRequest struct {
	EmoteID      string `json:"emote_id"`
	TargetUserID string `json:"target_user_id,omitempty"`
}

func (emoteRequest) name() string { return "Emote" }

type chatRequest struct {
	Message         string `json:"message"`
	WhisperTargetID string `json:"whisper_target_id,omitempty"`
}

func (chatRequest) name() string { return "Chat" }

type getRoomPrivilegeRequest struct {
	UserID string `json:"user_id"`
}

func (getRoomPrivilegeRequest) name() string { return "GetRoomPrivilege" }

type moderateRoomRequest struct {
	UserID           string `json:"user_id"`
	ModerationAction string `json:"moderation_action"`
}

func (moderateRoomRequest) name() string { return "ModerateRoom" }

type keepaliveRequest struct{}

func (keepaliveRequest) name() string { return "Keepalive" }

func encodeRequest(r request, rid string) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	head, err := json.Marshal(frame{Type: r.name() + "Request", RID: rid})
	if err != nil {
		return nil, err
	}
	if len(body) <= 2 {
		return head, nil
	}
	// {"_type":..,"rid":..} + {fields...} -> {"_type":..,"rid":..,fields...}
	out := append(head[:len(head)-1], ',')
	return append(out, body[1:]...), nil
}

// Responses.

type getRoomUsersResponse struct {
	Content [][2]json.RawMessage `json:"content"`
}

func (r getRoomUsersResponse) occupants() ([]space.Occupant, error) {
	out := make([]space.Occupant, 0, len(r.Content))
	for _, pair := range r.Content {
		var u wireUser
		var p wirePosition
		if err := json.Unmarshal(pair[0], &u); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(pair[1], &p); err != nil {
			return nil, err
		}
		out = append(out, space.Occupant{Entity: u.entity(), Position: p.position(), Anchored: p.anchored()})
	}
	return out, nil
}

type getRoomPrivilegeResponse struct {
	Content struct {
		Moderator bool `json:"moderator"`
		Designer  bool `json:"designer"`
	} `json:"content"`
}

// Events pushed by the room.

// Event is one of ChatEvent, WhisperEvent, UserJoinedEvent, UserLeftEvent
// or SessionMetadata.
type Event interface {
	eventName() string
}

type ChatEvent struct {
	User    space.Entity
	Message string
}

type WhisperEvent struct {
	User    space.Entity
	Message string
}

// UserJoinedEvent has a zero Position when Anchored is set.
type UserJoinedEvent struct {
	User     space.Entity
	Position space.Position
	Anchored bool
}

type UserLeftEvent struct {
	User space.Entity
}

// SessionMetadata is the first message of every session. UserID is the
// bot's own id.
type SessionMetadata struct {
	UserID   string
	RoomName string
}

func (ChatEvent) eventName() string       { return "ChatEvent" }
func (WhisperEvent) eventName() string    { return "WhisperEvent" }
func (UserJoinedEvent) eventName() string { return "UserJoinedEvent" }
func (UserLeftEvent) eventName() string   { return "UserLeftEvent" }
func (SessionMetadata) eventName() string { return "SessionMetadata" }

type wireChat struct {
	User    wireUser `json:"user"`
	Message string   `json:"message"`
}

type wireUserJoined struct {
	User     wireUser     `json:"user"`
	Position wirePosition `json:"position"`
}

type wireUserLeft struct {
	User wireUser `json:"user"`
}

type wireSession struct {
	UserID   string `json:"user_id"`
	RoomInfo struct {
		RoomName string `json:"room_name"`
	} `json:"room_info"`
}

// decodeEvent turns a pushed frame into an Event. Unknown types return nil.
func decodeEvent(typ string, raw []byte) (Event, error) {
	switch typ {
	case "ChatEvent", "WhisperEvent":
		var w wireChat
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		if typ == "WhisperEvent" {
			return WhisperEvent{User: w.User.entity(), Message: w.Message}, nil
		}
		return ChatEvent{User: w.User.entity(), Message: w.Message}, nil
	case "UserJoinedEvent":
		var w wireUserJoined
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return UserJoinedEvent{User: w.User.entity(), Position: w.Position.position(), Anchored: w.Position.anchored()}, nil
	case "UserLeftEvent":
		var w wireUserLeft
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return UserLeftEvent{User: w.User.entity()}, nil
	case "SessionMetadata":
		var w wireSession
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return SessionMetadata{UserID: w.UserID, RoomName: w.RoomInfo.RoomName}, nil
	}
	return nil, nil
}
