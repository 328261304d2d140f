package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/ronappleton/teams-approval-bot/internal/card"
	"github.com/ronappleton/teams-approval-bot/internal/teams"
	"github.com/ronappleton/teams-approval-bot/internal/workflow"
)

const anyVerb = "*"

type actionKey struct {
	card card.ID
	verb string
}

// cardAction is the value of an adaptiveCard/action invoke.
type cardAction struct {
	cardID card.ID
	verb   string
	data   gjson.Result
}

type actionHandler func(b *Bot, ctx context.Context, a teams.Activity, act cardAction) (card.InvokeResponse, error)

func actionTable() map[actionKey]actionHandler {
	return map[actionKey]actionHandler{
		{card.ApprovalBase, "refresh"}: approval(workflow.VerbRefresh),

		{card.ApprovalForSender, "update"}:  approval(workflow.VerbUpdate),
		{card.ApprovalForSender, "cancel"}:  approval(workflow.VerbCancel),
		{card.ApprovalForSender, "refresh"}: approval(workflow.VerbRefresh),

		{card.ApprovalForApprover, "approve"}: approval(workflow.VerbApprove),
		{card.ApprovalForApprover, "reject"}:  approval(workflow.VerbReject),
		{card.ApprovalForApprover, "refresh"}: approval(workflow.VerbRefresh),

		{card.BotSearch, anyVerb}:                    (*Bot).search,
		{card.BotSearchResults, anyVerb}:             (*Bot).searchResult,
		{card.BotSearchResult, "procurementRequest"}: (*Bot).procurementRequest,
	}
}

// lookupAction finds the handler for (id, verb), falling back to the card's
// wildcard entry.
func (b *Bot) lookupAction(id card.ID, verb string) (actionHandler, error) {
	if h, ok := b.actions[actionKey{id, verb}]; ok {
		return h, nil
	}
	if h, ok := b.actions[actionKey{id, anyVerb}]; ok {
		return h, nil
	}
	for key := range b.actions {
		if key.card == id {
			return nil, fmt.Errorf("%w '%s' for card %s", workflow.ErrUnknownVerb, verb, id)
		}
	}
	return nil, &card.UnknownCardError{ID: string(id)}
}

func (b *Bot) onAdaptiveCardAction(ctx context.Context, a teams.Activity) (Response, error) {
	value := gjson.ParseBytes(a.Value)
	act := cardAction{
		cardID: card.ID(value.Get("action.data.cardId").String()),
		verb:   value.Get("action.verb").String(),
		data:   value.Get("action.data"),
	}
	h, err := b.lookupAction(act.cardID, act.verb)
	if err != nil {
		return Response{}, err
	}
	resp, err := h(b, ctx, a, act)
	if err != nil {
		return Response{}, err
	}
	return ok(resp), nil
}

func approval(verb workflow.Verb) actionHandler {
	return func(b *Bot, ctx context.Context, a teams.Activity, act cardAction) (card.InvokeResponse, error) {
		req, in, err := workflow.DecodePayload([]byte(act.data.Raw))
		if err != nil {
			return card.InvokeResponse{}, err
		}
		members, err := b.roster(ctx, a)
		if err != nil {
			return card.InvokeResponse{}, fmt.Errorf("list members: %w", err)
		}
		actor, err := members.sender(a.From)
		if err != nil {
			return card.InvokeResponse{}, err
		}

		out, err := b.workflow.Advance(ctx, req, workflow.Action{
			Verb:        verb,
			Actor:       actor,
			Comment:     in.Comment,
			Title:       in.Title,
			Description: in.Description,
		})
		if err != nil {
			return card.InvokeResponse{}, err
		}

		userIDs := []string{a.From.ID}
		if out.Broadcast {
			userIDs = members.idsFor(out.Audience)
			b.metrics.TransitionsTotal.WithLabelValues(string(verb), string(out.Request.State)).Inc()
		}
		rendered, err := b.render(out.Card, workflow.CardData(out.Request, userIDs))
		if err != nil {
			return card.InvokeResponse{}, err
		}
		if !out.Broadcast {
			return card.Respond(card.RespondRefresh, rendered)
		}
		return b.refreshAll(ctx, a, rendered)
	}
}

// refreshAll overwrites the message the action came from for everyone and
// answers the invoke with the same card. The transition is already committed
// when this runs, so a failed overwrite is logged and the clicker still gets
// the new card.
func (b *Bot) refreshAll(ctx context.Context, a teams.Activity, rendered json.RawMessage) (card.InvokeResponse, error) {
	if a.ReplyToID == "" {
		b.logger.Warn("card action without replyToId, message not updated",
			zap.String("conversation_id", a.Conversation.ID))
	} else if err := b.connector.Update(ctx, a.ServiceURL, a.Conversation.ID, a.ReplyToID, teams.Activity{
		Type:        teams.ActivityMessage,
		Attachments: []teams.Attachment{attachment(rendered)},
	}); err != nil {
		b.metrics.ErrorsTotal.WithLabelValues("UpdateActivityFailed").Inc()
		b.logger.Error("message not updated after transition",
			zap.String("conversation_id", a.Conversation.ID),
			zap.String("activity_id", a.ReplyToID),
			zap.Error(err))
	}
	return card.Respond(card.RespondRefresh, rendered)
}

type part struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func partByID(id string) part {
	return part{ID: id, Name: "Part " + id, Description: "Description of part " + id}
}

func (b *Bot) search(ctx context.Context, a teams.Activity, act cardAction) (card.InvokeResponse, error) {
	results := []part{partByID("1"), partByID("2"), partByID("3")}
	if q := strings.ToLower(strings.TrimSpace(act.data.Get("query").String())); q != "" {
		filtered := results[:0]
		for _, p := range results {
			if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Description), q) {
				filtered = append(filtered, p)
			}
		}
		results = filtered
	}
	rendered, err := b.render(card.BotSearchResults, map[string]any{"results": results})
	if err != nil {
		return card.InvokeResponse{}, err
	}
	if act.data.Get("searchResult").String() == "refresh" {
		return card.Respond(card.RespondRefresh, rendered)
	}
	if err := b.sendCard(ctx, a, rendered, nil); err != nil {
		return card.InvokeResponse{}, err
	}
	return card.ToMessage("Your query request was sent."), nil
}

func (b *Bot) searchResult(_ context.Context, _ teams.Activity, act cardAction) (card.InvokeResponse, error) {
	rendered, err := b.render(card.BotSearchResult, partByID(act.data.Get("id").String()))
	if err != nil {
		return card.InvokeResponse{}, err
	}
	return card.Respond(card.RespondRefresh, rendered)
}

// procurementRequest opens an approval for a search result. Approvers are the
// roster members whose email carries the configured prefix.
func (b *Bot) procurementRequest(ctx context.Context, a teams.Activity, act cardAction) (card.InvokeResponse, error) {
	members, err := b.roster(ctx, a)
	if err != nil {
		return card.InvokeResponse{}, fmt.Errorf("list members: %w", err)
	}
	sender, err := members.sender(a.From)
	if err != nil {
		return card.InvokeResponse{}, err
	}
	var approvers []string
	for _, m := range members {
		if email := emailOf(m); email != "" && strings.HasPrefix(email, b.cfg.ProcurementApproverPrefix) {
			approvers = append(approvers, email)
		}
	}
	req, err := b.workflow.Start(ctx, sender,
		"Procurement request approval",
		"Asset ID: "+act.data.Get("id").String(),
		approvers)
	if err != nil {
		return card.InvokeResponse{}, err
	}
	b.metrics.TransitionsTotal.WithLabelValues(string(workflow.VerbSubmit), string(req.State)).Inc()

	audience := append([]string{req.From}, req.Approvers...)
	rendered, err := b.render(card.ApprovalBase, workflow.CardData(req, members.idsFor(audience)))
	if err != nil {
		return card.InvokeResponse{}, err
	}
	return b.refreshAll(ctx, a, rendered)
}
