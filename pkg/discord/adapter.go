package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/pay-tools/tx-relay/pkg/models/domain"
	"github.com/pay-tools/tx-relay/pkg/services/channel"
	"github.com/pay-tools/tx-relay/pkg/services/dashboard"
	"github.com/pay-tools/tx-relay/pkg/services/render"
)

const (
	customIDToday     = "btn_today"
	customIDYesterday = "btn_yesterday"
	customIDCustom    = "btn_custom"
	customIDBack      = "btn_back"
	customIDClear     = "btn_clear"
	customIDDateModal = "modal_custom_date"
	fieldDateStart    = "date_start"
	fieldDateEnd      = "date_end"
)

var buttonInputs = map[string]dashboard.Input{
	customIDToday:     dashboard.InputToday,
	customIDYesterday: dashboard.InputYesterday,
	customIDCustom:    dashboard.InputCustom,
	customIDBack:      dashboard.InputBack,
	customIDClear:     dashboard.InputClear,
}

// Adapter is the Discord edge of the relay. It implements channel.Messenger
// for outbound posts and translates interaction events into dashboard inputs.
type Adapter struct {
	session   *discordgo.Session
	channelID string
	logger    zerolog.Logger

	dashboard dashboard.Manager
	channel   channel.Manager
}

func NewAdapter(token, channelID string, logger zerolog.Logger) (*Adapter, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	return &Adapter{
		session:   session,
		channelID: channelID,
		logger:    logger,
	}, nil
}

// Bind wires the interactive dependencies. The channel manager is constructed
// on top of the adapter, so this happens after NewAdapter.
func (a *Adapter) Bind(dash dashboard.Manager, channelMgr channel.Manager) {
	a.dashboard = dash
	a.channel = channelMgr
}

func (a *Adapter) Open() error {
	a.session.AddHandler(a.onInteraction)
	if err := a.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	return a.session.Close()
}

// Send implements channel.Messenger.
func (a *Adapter) Send(_ context.Context, msg render.Message) (string, error) {
	posted, err := a.session.ChannelMessageSendComplex(a.channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{toEmbed(msg)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return posted.ID, nil
}

// SendPanel implements channel.Messenger.
func (a *Adapter) SendPanel(_ context.Context, msg render.Message) (string, error) {
	posted, err := a.session.ChannelMessageSendComplex(a.channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{toEmbed(msg)},
		Components: panelComponents(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to send panel: %w", err)
	}
	return posted.ID, nil
}

// Delete implements channel.Messenger.
func (a *Adapter) Delete(_ context.Context, messageID string) error {
	return a.session.ChannelMessageDelete(a.channelID, messageID)
}

func (a *Adapter) onInteraction(s *discordgo.Session, event *discordgo.InteractionCreate) {
	if event.ChannelID != a.channelID {
		return
	}

	userID := interactionUserID(event)
	logger := a.logger.With().Str("user", userID).Logger()
	ctx := logger.WithContext(context.Background())

	switch event.Type {
	case discordgo.InteractionMessageComponent:
		a.handleButton(ctx, event, userID)
	case discordgo.InteractionModalSubmit:
		a.handleModal(ctx, event, userID)
	}
}

func (a *Adapter) handleButton(ctx context.Context, event *discordgo.InteractionCreate, userID string) {
	input, ok := buttonInputs[event.MessageComponentData().CustomID]
	if !ok {
		return
	}

	// The Custom button answers with a modal, which must be the first
	// response; everything else defers and follows up.
	if input == dashboard.InputCustom {
		out, err := a.dashboard.Press(ctx, userID, input)
		if errors.Is(err, dashboard.ErrUnauthorized) {
			a.respondEphemeral(event, "Admin only.")
			return
		}
		if err != nil || !out.PromptDate {
			a.respondEphemeral(event, "Please use the panel buttons.")
			return
		}
		a.respondModal(event)
		return
	}

	a.deferEphemeral(event)
	out, err := a.dashboard.Press(ctx, userID, input)
	a.applyOutcome(ctx, event, out, err)
}

func (a *Adapter) handleModal(ctx context.Context, event *discordgo.InteractionCreate, userID string) {
	data := event.ModalSubmitData()
	if data.CustomID != customIDDateModal {
		return
	}

	start, end := modalValues(data)
	a.deferEphemeral(event)
	out, err := a.dashboard.SubmitCustomDate(ctx, userID, start, end)
	a.applyOutcome(ctx, event, out, err)
}

// applyOutcome turns a state machine outcome into Discord traffic: reports go
// to the channel through the lifecycle manager so they are ledgered, notices
// stay ephemeral to the actor.
func (a *Adapter) applyOutcome(
	ctx context.Context,
	event *discordgo.InteractionCreate,
	out dashboard.Outcome,
	err error,
) {
	logger := zerolog.Ctx(ctx)

	switch {
	case errors.Is(err, dashboard.ErrUnauthorized):
		a.followupEphemeral(event, "Admin only.")
		return
	case errors.Is(err, dashboard.ErrStaleInteraction):
		a.followupEphemeral(event, "That control no longer applies; use the latest panel.")
		return
	case err != nil:
		logger.Error().Err(err).Msg("interaction failed")
		a.followupEphemeral(event, "Something went wrong handling that.")
		return
	}

	if out.Result != nil {
		if _, postErr := a.channel.Post(ctx, render.Report(*out.Result, false), domain.KindDashboardInstance); postErr != nil {
			logger.Error().Err(postErr).Msg("failed to post dashboard report")
			a.followupEphemeral(event, "Report ready but posting it failed.")
			return
		}
		if refreshErr := a.channel.RefreshPanel(ctx); refreshErr != nil {
			logger.Error().Err(refreshErr).Msg("failed to refresh panel")
		}
		a.followupEphemeral(event, fmt.Sprintf("Report for %s posted.", out.Result.Query.Range))
		return
	}

	if out.Notice != "" {
		a.followupEphemeral(event, out.Notice)
		return
	}
	a.followupEphemeral(event, "Done.")
}

func (a *Adapter) respondEphemeral(event *discordgo.InteractionCreate, content string) {
	err := a.session.InteractionRespond(event.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to respond to interaction")
	}
}

func (a *Adapter) deferEphemeral(event *discordgo.InteractionCreate) {
	err := a.session.InteractionRespond(event.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to defer interaction")
	}
}

func (a *Adapter) followupEphemeral(event *discordgo.InteractionCreate, content string) {
	_, err := a.session.FollowupMessageCreate(event.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to send follow-up")
	}
}

func (a *Adapter) respondModal(event *discordgo.InteractionCreate) {
	err := a.session.InteractionRespond(event.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: customIDDateModal,
			Title:    "Pick a date range",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    fieldDateStart,
						Label:       "Start date (YYYY-MM-DD)",
						Style:       discordgo.TextInputShort,
						Placeholder: "2026-02-04",
						Required:    true,
						MinLength:   10,
						MaxLength:   10,
					},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    fieldDateEnd,
						Label:       "End date (optional)",
						Style:       discordgo.TextInputShort,
						Placeholder: "2026-02-05",
						Required:    false,
						MaxLength:   10,
					},
				}},
			},
		},
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to open date modal")
	}
}

func panelComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Today", Style: discordgo.SuccessButton, CustomID: customIDToday},
			discordgo.Button{Label: "Yesterday", Style: discordgo.PrimaryButton, CustomID: customIDYesterday},
			discordgo.Button{Label: "Custom", Style: discordgo.SecondaryButton, CustomID: customIDCustom},
			discordgo.Button{Label: "Back", Style: discordgo.SecondaryButton, CustomID: customIDBack},
			discordgo.Button{Label: "Clear", Style: discordgo.DangerButton, CustomID: customIDClear},
		}},
	}
}

func toEmbed(msg render.Message) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Body,
		Color:       msg.Color,
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  f.Name,
			Value: f.Value,
		})
	}
	if msg.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: msg.Footer}
	}
	if !msg.Timestamp.IsZero() {
		embed.Timestamp = msg.Timestamp.Format(time.RFC3339)
	}
	return embed
}

func modalValues(data discordgo.ModalSubmitInteractionData) (start, end string) {
	for _, row := range data.Components {
		actionsRow, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range actionsRow.Components {
			ti, ok := comp.(*discordgo.TextInput)
			if !ok {
				continue
			}
			switch ti.CustomID {
			case fieldDateStart:
				start = ti.Value
			case fieldDateEnd:
				end = ti.Value
			}
		}
	}
	return start, end
}

func interactionUserID(event *discordgo.InteractionCreate) string {
	if event.Member != nil && event.Member.User != nil {
		return event.Member.User.ID
	}
	if event.User != nil {
		return event.User.ID
	}
	return ""
}
