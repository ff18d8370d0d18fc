package events

// Event payload types shared by the rooms, game and chat packages and the gateway

// RoomCreatedPayload is the payload for a RoomCreated event
type RoomCreatedPayload struct {
	HostID     string `json:"host_id"`
	HostName   string `json:"host_name"`
	MaxPlayers int    `json:"max_players"`
}

// PlayerJoinedPayload is the payload for a PlayerJoined event
type PlayerJoinedPayload struct {
	PlayerID    string `json:"player_id"`
	PlayerName  string `json:"player_name"`
	PlayerCount int    `json:"player_count"`
}

// PlayerLeftPayload is the payload for a PlayerLeft event
type PlayerLeftPayload struct {
	PlayerID    string `json:"player_id"`
	RoomDeleted bool   `json:"room_deleted"`
}

// RoomClosedPayload is the payload for a RoomClosed event
type RoomClosedPayload struct {
	ClosedBy string `json:"closed_by"`
}

// RoomDeletedPayload is the payload for a RoomDeleted event
type RoomDeletedPayload struct {
	DeletedBy string `json:"deleted_by"`
}

// GameStartedPayload is the payload for a GameStarted event
type GameStartedPayload struct {
	PlayersOrder []string `json:"players_order"`
	Round        int      `json:"round"`
	TurnDeadline int64    `json:"turn_deadline"`
}

// GuessRecordedPayload is the payload for a GuessRecorded event
type GuessRecordedPayload struct {
	PlayerID string `json:"player_id"`
	Round    int    `json:"round"`
	Correct  bool   `json:"correct"`
}

// PlayerEliminatedPayload is the payload for a PlayerEliminated event
type PlayerEliminatedPayload struct {
	PlayerID string `json:"player_id"`
	Round    int    `json:"round"`
	Reason   string `json:"reason"`
}

// RoundStartedPayload is the payload for a RoundStarted event
type RoundStartedPayload struct {
	Round         int      `json:"round"`
	IsFinalRound  bool     `json:"is_final_round"`
	ActivePlayers []string `json:"active_players"`
	TurnDeadline  int64    `json:"turn_deadline"`
}

// GameEndedPayload is the payload for a GameEnded event
type GameEndedPayload struct {
	WinnerID string `json:"winner_id"`
	Draw     bool   `json:"draw"`
	Round    int    `json:"round"`
}

// ChatMessagePayload is the payload for a ChatMessage event
type ChatMessagePayload struct {
	MessageID string `json:"message_id"`
	SenderID  string `json:"sender_id"`
	System    bool   `json:"system"`
}
