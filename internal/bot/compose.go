package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/ronappleton/teams-approval-bot/internal/card"
	"github.com/ronappleton/teams-approval-bot/internal/teams"
	"github.com/ronappleton/teams-approval-bot/internal/workflow"
)

const (
	commandCompose          = "taskModuleCompose"
	commandBot              = "taskModuleBot"
	commandStaticParameters = "staticParameters"
	commandTaskModule       = "taskModule"

	composeStepBasicInfo = "taskModuleComposeCardBasicInfo"
	composeStepApprovers = "taskModuleComposeCardApprovers"
)

func (b *Bot) onFetchTask(ctx context.Context, a teams.Activity) (Response, error) {
	commandID := gjson.GetBytes(a.Value, "commandId").String()
	if commandID == commandCompose {
		return b.basicInfoStep()
	}
	if a.Conversation.ConversationType != teams.ConversationChannel {
		rendered, err := b.render(card.Editor, editorData{MultiSelect: "false", UserAttribution: "false"})
		if err != nil {
			return Response{}, err
		}
		return ok(b.taskModule(rendered)), nil
	}

	// sending through the bot needs the bot in the team
	if _, err := b.roster(ctx, a); err != nil {
		b.logger.Info("roster lookup failed, asking for install",
			zap.String("conversation_id", a.Conversation.ID),
			zap.Error(err))
		rendered, err := b.render(card.NotInstalled, map[string]any{"productName": b.cfg.ProductName})
		if err != nil {
			return Response{}, err
		}
		return ok(b.taskModule(rendered)), nil
	}
	return b.basicInfoStep()
}

func (b *Bot) basicInfoStep() (Response, error) {
	rendered, err := b.render(card.ComposeBasicInfo, nil)
	if err != nil {
		return Response{}, err
	}
	return ok(b.taskModule(rendered)), nil
}

func (b *Bot) onSubmitAction(ctx context.Context, a teams.Activity) (Response, error) {
	value := gjson.ParseBytes(a.Value)
	switch value.Get("botMessagePreviewAction").String() {
	case "edit":
		return b.previewEdit(value)
	case "send":
		return b.previewSend(ctx, a, value)
	}

	data := value.Get("data")
	switch commandID := value.Get("commandId").String(); commandID {
	case commandCompose, commandBot:
		if data.Get("cardId").String() == composeStepBasicInfo {
			return b.approversStep(ctx, a, data)
		}
		return b.submitApproval(ctx, a, commandID, data)
	case commandStaticParameters:
		hero := card.Hero(data.Get("title").String(), data.Get("subTitle").String(), data.Get("text").String())
		return ok(card.ToComposeResult(hero)), nil
	case commandTaskModule:
		if data.Get("id").String() != "editor" {
			return Response{}, fmt.Errorf("task module submit %q: %w", data.Get("id").String(), ErrNotImplemented)
		}
		rendered, err := b.render(card.EditorPreview, previewFromSubmit(data))
		if err != nil {
			return Response{}, err
		}
		return ok(card.ToBotMessagePreview(card.Adaptive(rendered))), nil
	default:
		return Response{}, fmt.Errorf("command %q: %w", commandID, ErrNotImplemented)
	}
}

// approversStep asks for approvers. The roster feeds a choice set; without
// it the approvers are typed in.
func (b *Bot) approversStep(ctx context.Context, a teams.Activity, data gjson.Result) (Response, error) {
	fields := map[string]any{
		"title":       data.Get("title").String(),
		"description": data.Get("description").String(),
	}
	id := card.ComposeApproversText
	if members, err := b.roster(ctx, a); err != nil {
		b.logger.Info("roster lookup failed, falling back to free text approvers", zap.Error(err))
	} else {
		id = card.ComposeApproversChoice
		fields["candidates"] = members.candidates(a.From)
	}
	rendered, err := b.render(id, fields)
	if err != nil {
		return Response{}, err
	}
	return ok(b.taskModule(rendered)), nil
}

func (b *Bot) submitApproval(ctx context.Context, a teams.Activity, commandID string, data gjson.Result) (Response, error) {
	members, err := b.roster(ctx, a)
	if err != nil {
		return Response{}, fmt.Errorf("list members: %w", err)
	}
	sender, err := members.sender(a.From)
	if err != nil {
		return Response{}, err
	}
	req, err := b.workflow.Start(ctx, sender,
		data.Get("title").String(),
		data.Get("description").String(),
		workflow.ParseApprovers(data.Get("approvers").String()))
	if err != nil {
		return Response{}, err
	}
	b.metrics.TransitionsTotal.WithLabelValues(string(workflow.VerbSubmit), string(req.State)).Inc()

	audience := append([]string{req.From}, req.Approvers...)
	rendered, err := b.render(card.ApprovalBase, workflow.CardData(req, members.idsFor(audience)))
	if err != nil {
		return Response{}, err
	}
	if commandID == commandCompose {
		return ok(card.ToComposeResult(card.Adaptive(rendered))), nil
	}
	if err := b.sendCard(ctx, a, rendered, nil); err != nil {
		return Response{}, err
	}
	return ok(map[string]any{}), nil
}

type editorData struct {
	Question        string `json:"question"`
	MultiSelect     string `json:"multiSelect"`
	Option1         string `json:"option1"`
	Option2         string `json:"option2"`
	Option3         string `json:"option3"`
	UserAttribution string `json:"userAttribution"`
}

type previewData struct {
	Question        string   `json:"question"`
	IsMultiSelect   bool     `json:"isMultiSelect"`
	Options         []string `json:"options"`
	UserAttribution string   `json:"userAttribution"`
}

func previewFromSubmit(data gjson.Result) previewData {
	return previewData{
		Question:        data.Get("Question").String(),
		IsMultiSelect:   strings.EqualFold(data.Get("MultiSelect").String(), "true"),
		Options:         []string{data.Get("Option1").String(), data.Get("Option2").String(), data.Get("Option3").String()},
		UserAttribution: data.Get("UserAttributionSelect").String(),
	}
}

// previewFromActivity reads back the editor preview card Teams echoes on
// edit and send.
func previewFromActivity(value gjson.Result) previewData {
	content := value.Get("botActivityPreview.0.attachments.0.content")
	choices := content.Get("body.3")
	var options []string
	for _, title := range choices.Get("choices.#.title").Array() {
		options = append(options, title.String())
	}
	attribution := content.Get("body.4.text").String()
	if i := strings.LastIndex(attribution, ":"); i >= 0 {
		attribution = attribution[i+1:]
	}
	return previewData{
		Question:        content.Get("body.1.text").String(),
		IsMultiSelect:   choices.Get("isMultiSelect").Bool(),
		Options:         options,
		UserAttribution: strings.TrimSpace(attribution),
	}
}

func (b *Bot) previewEdit(value gjson.Result) (Response, error) {
	p := previewFromActivity(value)
	data := editorData{
		Question:        p.Question,
		MultiSelect:     fmt.Sprint(p.IsMultiSelect),
		UserAttribution: p.UserAttribution,
	}
	opts := append(p.Options, "", "", "")
	data.Option1, data.Option2, data.Option3 = opts[0], opts[1], opts[2]
	if data.UserAttribution == "" {
		data.UserAttribution = "false"
	}
	rendered, err := b.render(card.Editor, data)
	if err != nil {
		return Response{}, err
	}
	return ok(b.taskModule(rendered)), nil
}

func (b *Bot) previewSend(ctx context.Context, a teams.Activity, value gjson.Result) (Response, error) {
	p := previewFromActivity(value)
	if p.Options == nil {
		p.Options = []string{}
	}
	rendered, err := b.render(card.EditorPreview, p)
	if err != nil {
		return Response{}, err
	}
	var channelData *teams.ChannelData
	if p.UserAttribution == "true" {
		channelData = &teams.ChannelData{OnBehalfOf: []teams.OnBehalfOf{{
			ItemID:      0,
			MentionType: "person",
			MRI:         a.From.ID,
			DisplayName: a.From.Name,
		}}}
	}
	if err := b.sendCard(ctx, a, rendered, channelData); err != nil {
		return Response{}, err
	}
	return ok(nil), nil
}
