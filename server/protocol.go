package main

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client -> Server message types
const (
	MsgSelectPartner  = "selectPartner"
	MsgRequestPartner = "requestPartner"
	MsgRespondPartner = "respondToPartnerRequest"
	MsgSetNickname    = "setNickname"
	MsgSetPlayerName  = "setPlayerName"
	MsgInput          = "input"
	MsgJoinQueue      = "joinQueue"
	MsgAuth           = "auth"
)

// Server -> Client message types
const (
	MsgPlayerState            = "updatePlayerState"
	MsgCountdown              = "countdownUpdate"
	MsgGameStart              = "gameStart"
	MsgShiftEnd               = "shiftEnd"
	MsgMultiplierActive       = "multiplierActive"
	MsgMultiplierInactive     = "multiplierInactive"
	MsgHeatClusterStatus      = "heatClusterStatus"
	MsgSuperChargeState       = "superChargeState"
	MsgLeaderboards           = "updateLeaderboards"
	MsgPartnerSelection       = "partnerSelection"
	MsgPartnerSelectionUpdate = "partnerSelectionUpdate"
	MsgPartnerRequest         = "partnerRequest"
	MsgPartnerConfirmed       = "partnerConfirmed"
	MsgPartnerRequestFailed   = "partnerRequestFailed"
	MsgPartnerRequestRejected = "partnerRequestRejected"
	MsgTeleportSuccess        = "teleportSuccess"
	MsgTeleportStatus         = "teleportStatus"
	MsgWelcome                = "welcome"
	MsgChat                   = "chat"
	MsgQueueIndicator         = "queueIndicator"
	MsgSetPosition            = "setPosition"
	MsgNicknameAccepted       = "nicknameAccepted"
	MsgNicknameRejected       = "nicknameRejected"
)

// superChargeState values
const (
	ChargeEnter       = "enter"
	ChargeCharging    = "charging"
	ChargeComplete    = "complete"
	ChargeReset       = "reset"
	ChargeExit        = "exit"
	ChargeAlreadyUsed = "alreadyUsed"
)

// teleportStatus values
const (
	TeleportNotInShift     = "notInShift"
	TeleportNoCharges      = "noCharges"
	TeleportCooldown       = "cooldown"
	TeleportNoPartner      = "noPartner"
	TeleportInvalidPartner = "invalidPartner"
)

// OutMessage is a server -> client message variant
type OutMessage interface {
	MessageType() string
}

// EncodeMessage marshals m as a flat JSON object with a leading "type" field
func EncodeMessage(m OutMessage) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	typ, _ := json.Marshal(m.MessageType())
	out := make([]byte, 0, len(body)+len(typ)+10)
	out = append(out, `{"type":`...)
	out = append(out, typ...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}

// PlayerStateMsg is pushed every state period and after state changes
type PlayerStateMsg struct {
	PlayerID        PlayerID      `json:"playerId" msgpack:"playerId"`
	PlayerName      string        `json:"playerName" msgpack:"playerName"`
	HeatLevel       int           `json:"heatLevel" msgpack:"heatLevel"`
	InLava          bool          `json:"inLava" msgpack:"inLava"`
	Score           int           `json:"score" msgpack:"score"`
	TopScore        int           `json:"topScore" msgpack:"topScore"`
	Multiplier      int           `json:"multiplier" msgpack:"multiplier"`
	TeleportCharges int           `json:"teleportCharges" msgpack:"teleportCharges"`
	PartnerID       PlayerID      `json:"partnerId,omitempty" msgpack:"partnerId,omitempty"`
	LastShift       []LeaderEntry `json:"lastShiftLeaders" msgpack:"lastShiftLeaders"`
	AllTime         []LeaderEntry `json:"allTimeLeaders" msgpack:"allTimeLeaders"`
}

// CountdownMsg is sent every second while a shift is starting
type CountdownMsg struct {
	Seconds    int  `json:"seconds"`
	ShouldFade bool `json:"shouldFade"`
}

// GameStartMsg is sent to each queued player as the shift starts
type GameStartMsg struct{}

// ShiftEndMsg is sent when the lava ends the shift
type ShiftEndMsg struct {
	Message   string        `json:"message"`
	LastShift []LeaderEntry `json:"lastShiftLeaders"`
	AllTime   []LeaderEntry `json:"allTimeLeaders"`
}

// MultiplierActiveMsg announces the bonus multiplier
type MultiplierActiveMsg struct {
	Multiplier int `json:"multiplier"`
}

// MultiplierInactiveMsg announces the multiplier is back to 1
type MultiplierInactiveMsg struct{}

// HeatClusterStatusMsg toggles the heat cluster hint
type HeatClusterStatusMsg struct {
	Active  bool   `json:"active"`
	Message string `json:"message,omitempty"`
}

// SuperChargeStateMsg reports super-charge station progress
type SuperChargeStateMsg struct {
	State    string  `json:"state"`
	Station  string  `json:"station,omitempty"`
	Progress float64 `json:"progress,omitempty"`
}

// LeaderboardsMsg carries both leaderboards
type LeaderboardsMsg struct {
	LastShift []LeaderEntry `json:"lastShiftLeaders"`
	AllTime   []LeaderEntry `json:"allTimeLeaders"`
}

// PlayerRef names another player
type PlayerRef struct {
	ID   PlayerID `json:"id"`
	Name string   `json:"name"`
}

// PartnerSelectionMsg lists queued players available as partners
type PartnerSelectionMsg struct {
	AvailablePlayers []PlayerRef `json:"availablePlayers"`
}

// PartnerSelectionUpdateMsg acknowledges a pending selection to the selector
type PartnerSelectionUpdateMsg struct {
	SelectedID PlayerID `json:"selectedId"`
	Status     string   `json:"status"`
	Message    string   `json:"message"`
}

// PartnerRequestMsg tells a player someone selected them
type PartnerRequestMsg struct {
	FromID   PlayerID `json:"fromId"`
	FromName string   `json:"fromName"`
	Message  string   `json:"message"`
}

// PartnerConfirmedMsg is sent to both sides of a committed partnership
type PartnerConfirmedMsg struct {
	PartnerID   PlayerID `json:"partnerId"`
	PartnerName string   `json:"partnerName"`
	Message     string   `json:"message"`
}

// PartnerRequestFailedMsg explains why a selection was refused
type PartnerRequestFailedMsg struct {
	Message string `json:"message"`
}

// PartnerRequestRejectedMsg tells a requester the target declined
type PartnerRequestRejectedMsg struct {
	PlayerName string `json:"playerName"`
}

// TeleportSuccessMsg confirms a teleport to the partner
type TeleportSuccessMsg struct {
	ChargesLeft int  `json:"chargesLeft"`
	Position    Vec3 `json:"position"`
}

// TeleportStatusMsg explains a declined teleport
type TeleportStatusMsg struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// WelcomeMsg is sent once after connect
type WelcomeMsg struct {
	PlayerID   PlayerID `json:"playerId"`
	PlayerName string   `json:"playerName"`
}

// ChatMsg is a system chat line
type ChatMsg struct {
	Message string `json:"message"`
	Color   string `json:"color,omitempty"`
}

// QueueIndicatorMsg shows or hides the queued marker
type QueueIndicatorMsg struct {
	Visible bool `json:"visible"`
}

// SetPositionMsg moves the client to a server-chosen position
type SetPositionMsg struct {
	Position Vec3   `json:"position"`
	Reason   string `json:"reason"`
}

// NicknameAcceptedMsg confirms a display name change
type NicknameAcceptedMsg struct {
	Name  string `json:"name"`
	Token string `json:"token,omitempty"`
}

// NicknameRejectedMsg refuses a display name change
type NicknameRejectedMsg struct {
	Message string `json:"message"`
}

func (PlayerStateMsg) MessageType() string            { return MsgPlayerState }
func (CountdownMsg) MessageType() string              { return MsgCountdown }
func (GameStartMsg) MessageType() string              { return MsgGameStart }
func (ShiftEndMsg) MessageType() string               { return MsgShiftEnd }
func (MultiplierActiveMsg) MessageType() string       { return MsgMultiplierActive }
func (MultiplierInactiveMsg) MessageType() string     { return MsgMultiplierInactive }
func (HeatClusterStatusMsg) MessageType() string      { return MsgHeatClusterStatus }
func (SuperChargeStateMsg) MessageType() string       { return MsgSuperChargeState }
func (LeaderboardsMsg) MessageType() string           { return MsgLeaderboards }
func (PartnerSelectionMsg) MessageType() string       { return MsgPartnerSelection }
func (PartnerSelectionUpdateMsg) MessageType() string { return MsgPartnerSelectionUpdate }
func (PartnerRequestMsg) MessageType() string         { return MsgPartnerRequest }
func (PartnerConfirmedMsg) MessageType() string       { return MsgPartnerConfirmed }
func (PartnerRequestFailedMsg) MessageType() string   { return MsgPartnerRequestFailed }
func (PartnerRequestRejectedMsg) MessageType() string { return MsgPartnerRequestRejected }
func (TeleportSuccessMsg) MessageType() string        { return MsgTeleportSuccess }
func (TeleportStatusMsg) MessageType() string         { return MsgTeleportStatus }
func (WelcomeMsg) MessageType() string                { return MsgWelcome }
func (ChatMsg) MessageType() string                   { return MsgChat }
func (QueueIndicatorMsg) MessageType() string         { return MsgQueueIndicator }
func (SetPositionMsg) MessageType() string            { return MsgSetPosition }
func (NicknameAcceptedMsg) MessageType() string       { return MsgNicknameAccepted }
func (NicknameRejectedMsg) MessageType() string       { return MsgNicknameRejected }

// OutboundMessages lists one value of every server -> client variant
var OutboundMessages = []OutMessage{
	PlayerStateMsg{}, CountdownMsg{}, GameStartMsg{}, ShiftEndMsg{},
	MultiplierActiveMsg{}, MultiplierInactiveMsg{}, HeatClusterStatusMsg{},
	SuperChargeStateMsg{}, LeaderboardsMsg{}, PartnerSelectionMsg{},
	PartnerSelectionUpdateMsg{}, PartnerRequestMsg{}, PartnerConfirmedMsg{},
	PartnerRequestFailedMsg{}, PartnerRequestRejectedMsg{}, TeleportSuccessMsg{},
	TeleportStatusMsg{}, WelcomeMsg{}, ChatMsg{}, QueueIndicatorMsg{},
	SetPositionMsg{}, NicknameAcceptedMsg{}, NicknameRejectedMsg{},
}

// InMessage is a client -> server message variant
type InMessage interface {
	inbound()
}

// InEnvelope reads only the discriminator
type InEnvelope struct {
	Type string `json:"type"`
}

// SelectPartnerMsg picks a queued player as partner
type SelectPartnerMsg struct {
	PartnerID PlayerID `json:"partnerId"`
}

// RespondPartnerMsg answers the most recent partner request
type RespondPartnerMsg struct {
	Accepted bool `json:"accepted"`
}

// SetNicknameMsg changes the display name. Password claims the name.
type SetNicknameMsg struct {
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
}

// InputMsg carries the client's position and held action flags
type InputMsg struct {
	Position *Vec3 `json:"pos,omitempty"`
	Teleport bool  `json:"teleport"`
	Charge   bool  `json:"charge"`
}

// RequestPartnerWire is the older spelling of selectPartner. It decodes
// into SelectPartnerMsg.
type RequestPartnerWire struct {
	TargetID PlayerID `json:"targetId"`
}

// JoinQueueMsg queues the player for the next shift
type JoinQueueMsg struct{}

// AuthMsg re-asserts a claimed nickname with its token
type AuthMsg struct {
	Token string `json:"token"`
}

func (SelectPartnerMsg) inbound()  {}
func (RespondPartnerMsg) inbound() {}
func (SetNicknameMsg) inbound()    {}
func (InputMsg) inbound()          {}
func (JoinQueueMsg) inbound()      {}
func (AuthMsg) inbound()           {}

// InboundMessages maps every accepted type to a value of its variant
var InboundMessages = map[string]InMessage{
	MsgSelectPartner:  SelectPartnerMsg{},
	MsgRequestPartner: SelectPartnerMsg{},
	MsgRespondPartner: RespondPartnerMsg{},
	MsgSetNickname:    SetNicknameMsg{},
	MsgSetPlayerName:  SetNicknameMsg{},
	MsgInput:          InputMsg{},
	MsgJoinQueue:      JoinQueueMsg{},
	MsgAuth:           AuthMsg{},
}

// ErrUnknownMessage is returned for an unrecognised type discriminator
var ErrUnknownMessage = errors.New("unknown message type")

// DecodeMessage parses a client message into its variant
func DecodeMessage(raw []byte) (InMessage, error) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case MsgSelectPartner:
		return decodeAs[SelectPartnerMsg](raw)
	case MsgRequestPartner:
		var m RequestPartnerWire
		if err := decodeInto(raw, &m); err != nil {
			return nil, err
		}
		return SelectPartnerMsg{PartnerID: m.TargetID}, nil
	case MsgRespondPartner:
		return decodeAs[RespondPartnerMsg](raw)
	case MsgSetNickname, MsgSetPlayerName:
		return decodeAs[SetNicknameMsg](raw)
	case MsgInput:
		return decodeAs[InputMsg](raw)
	case MsgJoinQueue:
		return JoinQueueMsg{}, nil
	case MsgAuth:
		return decodeAs[AuthMsg](raw)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
}

func decodeAs[T InMessage](raw []byte) (InMessage, error) {
	var m T
	if err := decodeInto(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeInto(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
