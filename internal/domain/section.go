package domain

import "fmt"

// MessageSection groups consecutive messages sharing one visual anchor.
// Sections are derived from the message list on every change and never
// persisted.
type MessageSection struct {
	ID           string    `json:"id"`
	Messages     []Message `json:"messages"`
	IsNewSection bool      `json:"is_new_section"`
	IsActive     bool      `json:"is_active"`
	SectionIndex int       `json:"section_index"`
}

// ReduceSections folds an ordered message list into sections. A new
// section starts at every message flagged NewSection; leading unflagged
// messages form an implicit first section that is not marked new. The
// most recently started flagged section is the active one. The reduction
// is pure: the same input always yields the same output.
func ReduceSections(messages []Message) []MessageSection {
	if len(messages) == 0 {
		return nil
	}

	var sections []MessageSection
	current := MessageSection{SectionIndex: 0}

	for _, msg := range messages {
		if msg.NewSection {
			if len(current.Messages) > 0 {
				sections = append(sections, current)
			}
			current = MessageSection{
				IsNewSection: true,
				SectionIndex: len(sections),
			}
		}
		current.Messages = append(current.Messages, msg)
	}
	if len(current.Messages) > 0 {
		sections = append(sections, current)
	}

	active := -1
	for i := range sections {
		sections[i].ID = fmt.Sprintf("section-%d", sections[i].SectionIndex)
		if sections[i].IsNewSection {
			active = i
		}
	}
	if active >= 0 {
		sections[active].IsActive = true
	}
	return sections
}

// FlagSections applies the new-section convention to a thread's history:
// a user message directly following an assistant message starts a new
// visual turn. The first message of a freshly loaded history is left
// unflagged. The input slice is annotated in place and returned.
func FlagSections(messages []Message) []Message {
	for i := range messages {
		messages[i].NewSection = i > 0 &&
			messages[i].Role == RoleUser &&
			messages[i-1].Role == RoleAssistant
	}
	return messages
}
