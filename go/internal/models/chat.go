package models

// SystemSenderID marks chat messages narrated by the game itself.
const SystemSenderID = "system"

// ChatMessage is one entry of a room's append-only chat log.
type ChatMessage struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"` // unix millis
}

// IsSystem reports whether the message was generated by the game.
func (m ChatMessage) IsSystem() bool {
	return m.SenderID == SystemSenderID
}
