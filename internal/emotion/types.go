package emotion

import "time"

// State is an emotional state label.
type State string

const (
	StateNeutral      State = "neutral"
	StatePleased      State = "pleased"
	StateConfused     State = "confused"
	StateSad          State = "sad"
	StateAngry        State = "angry"
	StateCaring       State = "caring"
	StateExcited      State = "excited"
	StateDisappointed State = "disappointed"
)

// States lists every state in priority order. Tie-breaking during
// analysis follows this order.
var States = []State{
	StateNeutral,
	StatePleased,
	StateConfused,
	StateSad,
	StateAngry,
	StateCaring,
	StateExcited,
	StateDisappointed,
}

// Record is one analyzed exchange in a session's emotion history.
type Record struct {
	Timestamp        time.Time `json:"timestamp"`
	UserEmotion      State     `json:"user_emotion"`
	CharacterEmotion State     `json:"character_emotion"`
}

// Stats summarizes the emotion history of a session.
type Stats struct {
	TotalInteractions int               `json:"total_interactions"`
	Distribution      map[State]float64 `json:"emotion_distribution"`
	RecentTrend       []State           `json:"recent_trend"`
}

// intensityOf maps a state to its -3..+3 arousal scale.
func intensityOf(s State) int {
	switch s {
	case StatePleased:
		return 2
	case StateConfused:
		return 1
	case StateSad:
		return -2
	case StateAngry:
		return -3
	case StateCaring:
		return 1
	case StateExcited:
		return 3
	default:
		return 0
	}
}
