package emotion

// MoodInstruction returns a short tone guideline for the character's
// current emotional state, or "" when no adjustment is needed.
func MoodInstruction(state State) string {
	switch state {
	case StateAngry:
		return "\n语气冷淡简短，避免亲昵表达。"
	case StateSad:
		return "\n语气低落克制，表达轻微委屈。"
	case StatePleased, StateExcited:
		return "\n语气温柔积极，适度亲昵。"
	case StateCaring:
		return "\n语气温暖体贴，表达关心。"
	default:
		return ""
	}
}
