package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(role string, newSection bool) Message {
	return Message{Role: role, Content: role, NewSection: newSection}
}

func TestReduceSections_Empty(t *testing.T) {
	assert.Nil(t, ReduceSections(nil))
	assert.Nil(t, ReduceSections([]Message{}))
}

func TestReduceSections_LeadingUnflaggedIsImplicitSection(t *testing.T) {
	sections := ReduceSections([]Message{
		msg(RoleUser, false),
		msg(RoleAssistant, false),
	})

	require.Len(t, sections, 1)
	assert.False(t, sections[0].IsNewSection)
	assert.False(t, sections[0].IsActive)
	assert.Equal(t, 0, sections[0].SectionIndex)
	assert.Len(t, sections[0].Messages, 2)
}

func TestReduceSections_SplitsOnFlaggedMessages(t *testing.T) {
	sections := ReduceSections([]Message{
		msg(RoleUser, false),
		msg(RoleAssistant, false),
		msg(RoleUser, true),
		msg(RoleAssistant, false),
		msg(RoleUser, true),
	})

	require.Len(t, sections, 3)
	assert.False(t, sections[0].IsNewSection)
	assert.True(t, sections[1].IsNewSection)
	assert.True(t, sections[2].IsNewSection)

	// only the latest flagged section is active
	assert.False(t, sections[0].IsActive)
	assert.False(t, sections[1].IsActive)
	assert.True(t, sections[2].IsActive)

	for i, s := range sections {
		assert.Equal(t, i, s.SectionIndex)
	}
}

func TestReduceSections_Idempotent(t *testing.T) {
	messages := []Message{
		msg(RoleUser, false),
		msg(RoleAssistant, false),
		msg(RoleUser, true),
		msg(RoleAssistant, false),
	}

	once := ReduceSections(messages)

	var flattened []Message
	for _, s := range once {
		flattened = append(flattened, s.Messages...)
	}
	twice := ReduceSections(flattened)

	assert.Equal(t, once, twice)
}

func TestFlagSections(t *testing.T) {
	messages := FlagSections([]Message{
		msg(RoleUser, false),
		msg(RoleAssistant, false),
		msg(RoleUser, false),
		msg(RoleAssistant, false),
	})

	assert.False(t, messages[0].NewSection, "first message is never flagged")
	assert.False(t, messages[1].NewSection)
	assert.True(t, messages[2].NewSection, "user turn after assistant starts a section")
	assert.False(t, messages[3].NewSection)
}
