package rooms

// JoinResult is the outcome of a join attempt.
type JoinResult int

const (
	JoinResultError JoinResult = iota
	JoinResultSuccess
	JoinResultRoomNotFound
	JoinResultRoomInactive
	JoinResultRoomFull
	JoinResultAlreadyJoined
)

func (r JoinResult) String() string {
	switch r {
	case JoinResultSuccess:
		return "SUCCESS"
	case JoinResultRoomNotFound:
		return "ROOM_NOT_FOUND"
	case JoinResultRoomInactive:
		return "ROOM_INACTIVE"
	case JoinResultRoomFull:
		return "ROOM_FULL"
	case JoinResultAlreadyJoined:
		return "ALREADY_JOINED"
	default:
		return "ERROR"
	}
}

// LeaveResult is the outcome of a leave request.
type LeaveResult int

const (
	LeaveResultError LeaveResult = iota
	// LeaveResultLeft means the player was removed and the room lives on.
	LeaveResultLeft
	// LeaveResultRoomDeleted means the host left or the room emptied.
	LeaveResultRoomDeleted
	// LeaveResultNothingToDo means the room or membership was already gone.
	LeaveResultNothingToDo
)

func (r LeaveResult) String() string {
	switch r {
	case LeaveResultLeft:
		return "LEFT"
	case LeaveResultRoomDeleted:
		return "ROOM_DELETED"
	case LeaveResultNothingToDo:
		return "NOTHING_TO_DO"
	default:
		return "ERROR"
	}
}

// Config holds room directory settings.
type Config struct {
	MaxPlayers   int
	CodeDigits   int
	CodeAttempts int
}

// DefaultConfig returns the standard room settings: four players and
// four-digit codes.
func DefaultConfig() Config {
	return Config{
		MaxPlayers:   4,
		CodeDigits:   4,
		CodeAttempts: 64,
	}
}
