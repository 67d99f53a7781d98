package discord

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pay-tools/tx-relay/pkg/services/render"
)

func TestToEmbed(t *testing.T) {
	msg := render.Message{
		Title:     "Report",
		Body:      "body",
		Color:     render.ColorActive,
		Fields:    []render.Field{{Name: "Totals", Value: "120 transfers"}},
		Footer:    "Requested by u1",
		Timestamp: time.Date(2026, 2, 4, 7, 30, 0, 0, time.UTC),
	}

	embed := toEmbed(msg)
	assert.Equal(t, "Report", embed.Title)
	assert.Equal(t, "body", embed.Description)
	assert.Equal(t, render.ColorActive, embed.Color)
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "Totals", embed.Fields[0].Name)
	require.NotNil(t, embed.Footer)
	assert.Equal(t, "Requested by u1", embed.Footer.Text)
	assert.Equal(t, "2026-02-04T07:30:00Z", embed.Timestamp)
}

func TestToEmbed_OmitsEmptyOptionals(t *testing.T) {
	embed := toEmbed(render.Message{Title: "Panel"})
	assert.Nil(t, embed.Footer)
	assert.Empty(t, embed.Timestamp)
}

func TestModalValues(t *testing.T) {
	data := discordgo.ModalSubmitInteractionData{
		CustomID: customIDDateModal,
		Components: []discordgo.MessageComponent{
			&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				&discordgo.TextInput{CustomID: fieldDateStart, Value: "2026-02-04"},
			}},
			&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				&discordgo.TextInput{CustomID: fieldDateEnd, Value: "2026-02-05"},
			}},
		},
	}

	start, end := modalValues(data)
	assert.Equal(t, "2026-02-04", start)
	assert.Equal(t, "2026-02-05", end)
}

func TestPanelComponents_CoverEveryInput(t *testing.T) {
	components := panelComponents()
	require.Len(t, components, 1)

	row, ok := components[0].(discordgo.ActionsRow)
	require.True(t, ok)

	rendered := make(map[string]bool)
	for _, comp := range row.Components {
		button, ok := comp.(discordgo.Button)
		require.True(t, ok)
		_, known := buttonInputs[button.CustomID]
		assert.True(t, known, "button %q has no dashboard input", button.CustomID)
		rendered[button.CustomID] = true
	}

	// The converse must hold too: every dashboard input is reachable from a
	// rendered button.
	for customID := range buttonInputs {
		assert.True(t, rendered[customID], "input %q has no rendered button", customID)
	}
}

func TestInteractionUserID(t *testing.T) {
	member := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Member: &discordgo.Member{User: &discordgo.User{ID: "42"}},
	}}
	assert.Equal(t, "42", interactionUserID(member))

	direct := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		User: &discordgo.User{ID: "43"},
	}}
	assert.Equal(t, "43", interactionUserID(direct))
}
