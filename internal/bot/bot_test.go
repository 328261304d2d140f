package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/ronappleton/teams-approval-bot/internal/card"
	"github.com/ronappleton/teams-approval-bot/internal/config"
	"github.com/ronappleton/teams-approval-bot/internal/metrics"
	"github.com/ronappleton/teams-approval-bot/internal/teams"
	"github.com/ronappleton/teams-approval-bot/internal/workflow"
)

type sentActivity struct {
	conversationID string
	activityID     string
	activity       teams.Activity
}

type fakeConnector struct {
	mu         sync.Mutex
	members    []teams.Member
	membersErr error
	updateErr  error
	sent       []sentActivity
	updated    []sentActivity
	created    []teams.ConversationParameters
}

func (f *fakeConnector) Members(_ context.Context, _, _ string) ([]teams.Member, error) {
	if f.membersErr != nil {
		return nil, f.membersErr
	}
	return f.members, nil
}

func (f *fakeConnector) Send(_ context.Context, _, conversationID string, a teams.Activity) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentActivity{conversationID: conversationID, activity: a})
	return "sent-" + conversationID, nil
}

func (f *fakeConnector) Update(_ context.Context, _, conversationID, activityID string, a teams.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, sentActivity{conversationID: conversationID, activityID: activityID, activity: a})
	return f.updateErr
}

func (f *fakeConnector) CreateConversation(_ context.Context, _ string, p teams.ConversationParameters) (teams.ConversationResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, p)
	return teams.ConversationResource{ID: "a:" + p.Members[0].ID}, nil
}

var (
	owner    = teams.ChannelAccount{ID: "29:owner", Name: "Owner", AADObjectID: "aad-owner"}
	approver = teams.ChannelAccount{ID: "29:a", Name: "A", AADObjectID: "aad-a"}
	second   = teams.ChannelAccount{ID: "29:b", Name: "B", AADObjectID: "aad-b"}
	outsider = teams.ChannelAccount{ID: "29:c", Name: "C", AADObjectID: "aad-c"}
)

func newTestBot(t *testing.T) (*Bot, *fakeConnector, *workflow.Service) {
	t.Helper()
	catalog, err := card.NewCatalog()
	require.NoError(t, err)
	conn := &fakeConnector{members: []teams.Member{
		{ID: "29:b", AADObjectID: "aad-b", Email: "b@x"},
		{ID: "29:owner", AADObjectID: "aad-owner", Email: "owner@x"},
		{ID: "29:a", AADObjectID: "aad-a", Email: "a@x"},
		{ID: "29:c", AADObjectID: "aad-c", UserPrincipalName: "procure-c@x"},
	}}
	svc := workflow.NewService(workflow.NewMemoryStore(), nil, zap.NewNop())
	cfg := config.Default()
	cfg.Bot.ProcurementApproverPrefix = "procure-"
	return New(cfg, catalog, svc, conn, metrics.New(), zap.NewNop()), conn, svc
}

func baseActivity(from teams.ChannelAccount) teams.Activity {
	return teams.Activity{
		ServiceURL: "https://smba.test/",
		ChannelID:  "msteams",
		From:       from,
		Recipient:  teams.ChannelAccount{ID: "28:bot", Name: "Approvals"},
		Conversation: teams.ConversationAccount{
			ID:               "19:conv",
			ConversationType: teams.ConversationChannel,
			TenantID:         "tenant",
		},
		ReplyToID: "msg-1",
		ChannelData: &teams.ChannelData{
			Team:    &teams.TeamInfo{ID: "19:team"},
			Channel: &teams.ChannelInfo{ID: "19:channel"},
		},
	}
}

func invoke(t *testing.T, name string, from teams.ChannelAccount, value any) teams.Activity {
	t.Helper()
	raw, err := json.Marshal(value)
	require.NoError(t, err)
	a := baseActivity(from)
	a.Type = teams.ActivityInvoke
	a.Name = name
	a.Value = raw
	return a
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

// cardActionValue renders id for req and returns the invoke value of the action
// with verb, inputs merged into its data the way Teams does.
func cardActionValue(t *testing.T, b *Bot, id card.ID, req workflow.Request, verb string, inputs map[string]any) map[string]any {
	t.Helper()
	rendered, err := b.catalog.Render(id, workflow.CardData(req, nil))
	require.NoError(t, err)
	path := `actions.#(verb=="` + verb + `").data`
	if verb == "refresh" {
		path = "refresh.action.data"
	}
	res := gjson.GetBytes(rendered, path)
	require.True(t, res.Exists(), "no %s action on %s", verb, id)
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Raw), &data))
	for k, v := range inputs {
		data[k] = v
	}
	return map[string]any{"action": map[string]any{"type": "Action.Execute", "verb": verb, "data": data}}
}

func TestWelcomeMessage(t *testing.T) {
	b, conn, _ := newTestBot(t)
	a := baseActivity(owner)
	a.Type = teams.ActivityMessage
	a.Text = "<at>Approvals</at> Welcome\n"
	a.Entities = []teams.Entity{{Type: "mention", Text: "<at>Approvals</at>", Mentioned: &teams.ChannelAccount{ID: "28:bot"}}}

	resp, err := b.Handle(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, conn.sent, 1)
	assert.Equal(t, "19:conv", conn.sent[0].conversationID)
	assert.Equal(t, card.ContentTypeAdaptiveCard, conn.sent[0].activity.Attachments[0].ContentType)
}

func TestFindPartSendsSearchCard(t *testing.T) {
	b, conn, _ := newTestBot(t)
	a := baseActivity(owner)
	a.Type = teams.ActivityMessage
	a.Text = "find   part please"

	_, err := b.Handle(context.Background(), a)
	require.NoError(t, err)
	require.Len(t, conn.sent, 1)
	body := toJSON(t, conn.sent[0].activity.Attachments[0].Content)
	assert.Equal(t, []string{"Bosch", "Microsoft", "Others"}, stringsAt(body, "body.#(id==\"manufacturer\").choices.#.title"))
}

func stringsAt(doc, path string) []string {
	var out []string
	for _, v := range gjson.Get(doc, path).Array() {
		out = append(out, v.String())
	}
	return out
}

func TestMembersAddedSendsWelcomeOnce(t *testing.T) {
	b, conn, _ := newTestBot(t)
	a := baseActivity(owner)
	a.Type = teams.ActivityConversationUpdate
	a.MembersAdded = []teams.ChannelAccount{{ID: "28:bot"}, {ID: "29:a"}}

	_, err := b.Handle(context.Background(), a)
	require.NoError(t, err)
	assert.Len(t, conn.sent, 1)
}

func TestFetchTaskCompose(t *testing.T) {
	b, _, _ := newTestBot(t)
	resp, err := b.Handle(context.Background(), invoke(t, invokeFetchTask, owner, map[string]any{"commandId": "taskModuleCompose"}))
	require.NoError(t, err)

	body := toJSON(t, resp.Body)
	assert.Equal(t, "continue", gjson.Get(body, "task.type").String())
	assert.Equal(t, "Approval Request", gjson.Get(body, "task.value.title").String())
	assert.Equal(t, int64(450), gjson.Get(body, "task.value.height").Int())
	assert.Equal(t, composeStepBasicInfo, gjson.Get(body, "task.value.card.content.actions.0.data.cardId").String())
}

func TestFetchTaskRosterFailureReturnsNotInstalled(t *testing.T) {
	b, conn, _ := newTestBot(t)
	conn.membersErr = &teams.StatusError{Op: "list members", StatusCode: http.StatusForbidden}

	resp, err := b.Handle(context.Background(), invoke(t, invokeFetchTask, owner, map[string]any{"commandId": "taskModuleBot"}))
	require.NoError(t, err)

	body := toJSON(t, resp.Body)
	assert.Equal(t, "Looks like you haven't used Disco in this team/chat", gjson.Get(body, "task.value.card.content.body.0.text").String())
	assert.True(t, gjson.Get(body, "task.value.card.content.actions.0.data.msteams.justInTimeInstall").Bool())
}

func TestFetchTaskInChannelWithRoster(t *testing.T) {
	b, _, _ := newTestBot(t)
	resp, err := b.Handle(context.Background(), invoke(t, invokeFetchTask, owner, map[string]any{"commandId": "taskModuleBot"}))
	require.NoError(t, err)
	assert.Equal(t, composeStepBasicInfo, gjson.Get(toJSON(t, resp.Body), "task.value.card.content.actions.0.data.cardId").String())
}

func TestFetchTaskInPersonalChatReturnsEditor(t *testing.T) {
	b, _, _ := newTestBot(t)
	a := invoke(t, invokeFetchTask, owner, map[string]any{"commandId": "taskModule"})
	a.Conversation.ConversationType = teams.ConversationPersonal

	resp, err := b.Handle(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, "editor", gjson.Get(toJSON(t, resp.Body), "task.value.card.content.actions.0.data.id").String())
}

func TestSubmitBasicInfoListsSortedCandidates(t *testing.T) {
	b, _, _ := newTestBot(t)
	resp, err := b.Handle(context.Background(), invoke(t, invokeSubmitAction, owner, map[string]any{
		"commandId": "taskModuleCompose",
		"data":      map[string]any{"cardId": composeStepBasicInfo, "title": "Laptop", "description": "New laptop"},
	}))
	require.NoError(t, err)

	body := toJSON(t, resp.Body)
	assert.Equal(t, []string{"a@x", "b@x", "procure-c@x"}, stringsAt(body, `task.value.card.content.body.#(id=="approvers").choices.#.value`))
	assert.Equal(t, "Laptop", gjson.Get(body, "task.value.card.content.actions.0.data.title").String())
}

func TestSubmitBasicInfoFallsBackToText(t *testing.T) {
	b, conn, _ := newTestBot(t)
	conn.membersErr = errors.New("boom")

	resp, err := b.Handle(context.Background(), invoke(t, invokeSubmitAction, owner, map[string]any{
		"commandId": "taskModuleBot",
		"data":      map[string]any{"cardId": composeStepBasicInfo, "title": "Laptop"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "Input.Text", gjson.Get(toJSON(t, resp.Body), `task.value.card.content.body.#(id=="approvers").type`).String())
}

func TestSubmitApproversComposeResult(t *testing.T) {
	b, _, svc := newTestBot(t)
	resp, err := b.Handle(context.Background(), invoke(t, invokeSubmitAction, owner, map[string]any{
		"commandId": "taskModuleCompose",
		"data": map[string]any{
			"cardId":      composeStepApprovers,
			"title":       "Laptop",
			"description": "New laptop",
			"approvers":   "a@x,b@x",
		},
	}))
	require.NoError(t, err)

	body := toJSON(t, resp.Body)
	assert.Equal(t, "result", gjson.Get(body, "composeExtension.type").String())
	content := gjson.Get(body, "composeExtension.attachments.0.content")
	assert.Equal(t, "approvalBase", content.Get("refresh.action.data.cardId").String())
	assert.Equal(t, []any{"29:b", "29:owner", "29:a"}, content.Get("refresh.userIds").Value())

	requestID := content.Get("refresh.action.data.requestId").String()
	history, err := svc.History(context.Background(), requestID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSubmitApproversBotSendsCard(t *testing.T) {
	b, conn, _ := newTestBot(t)
	resp, err := b.Handle(context.Background(), invoke(t, invokeSubmitAction, owner, map[string]any{
		"commandId": "taskModuleBot",
		"data":      map[string]any{"cardId": composeStepApprovers, "title": "Laptop", "approvers": "a@x"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "{}", toJSON(t, resp.Body))
	require.Len(t, conn.sent, 1)
}

func TestSubmitApproversUnknownSender(t *testing.T) {
	b, _, _ := newTestBot(t)
	_, err := b.Handle(context.Background(), invoke(t, invokeSubmitAction, teams.ChannelAccount{ID: "29:ghost", AADObjectID: "aad-ghost"}, map[string]any{
		"commandId": "taskModuleBot",
		"data":      map[string]any{"cardId": composeStepApprovers, "title": "Laptop", "approvers": "a@x"},
	}))
	require.ErrorIs(t, err, ErrSenderNotFound)
}

func TestSubmitStaticParametersHeroCard(t *testing.T) {
	b, _, _ := newTestBot(t)
	resp, err := b.Handle(context.Background(), invoke(t, invokeSubmitAction, owner, map[string]any{
		"commandId": "staticParameters",
		"data":      map[string]any{"title": "T", "subTitle": "S", "text": "X"},
	}))
	require.NoError(t, err)
	body := toJSON(t, resp.Body)
	assert.Equal(t, card.ContentTypeHeroCard, gjson.Get(body, "composeExtension.attachments.0.contentType").String())
	assert.Equal(t, "S", gjson.Get(body, "composeExtension.attachments.0.preview.content.subtitle").String())
}

func TestSubmitUnknownCommandIsNotImplemented(t *testing.T) {
	b, _, _ := newTestBot(t)
	_, err := b.Handle(context.Background(), invoke(t, invokeSubmitAction, owner, map[string]any{"commandId": "teleport"}))
	require.ErrorIs(t, err, ErrNotImplemented)

	_, err = b.Handle(context.Background(), invoke(t, invokeSubmitAction, owner, map[string]any{
		"commandId": "taskModule", "data": map[string]any{"id": "other"},
	}))
	require.ErrorIs(t, err, ErrNotImplemented)
}

func editorPreviewValue(t *testing.T, b *Bot, action string, attribution string) map[string]any {
	t.Helper()
	rendered, err := b.catalog.Render(card.EditorPreview, previewData{
		Question:        "Lunch?",
		IsMultiSelect:   true,
		Options:         []string{"Pizza", "Sushi", "Salad"},
		UserAttribution: attribution,
	})
	require.NoError(t, err)
	var content any
	require.NoError(t, json.Unmarshal(rendered, &content))
	return map[string]any{
		"commandId":               "taskModule",
		"botMessagePreviewAction": action,
		"botActivityPreview": []any{map[string]any{
			"attachments": []any{map[string]any{"contentType": card.ContentTypeAdaptiveCard, "content": content}},
		}},
	}
}

func TestEditorSubmitShowsPreview(t *testing.T) {
	b, _, _ := newTestBot(t)
	resp, err := b.Handle(context.Background(), invoke(t, invokeSubmitAction, owner, map[string]any{
		"commandId": "taskModule",
		"data": map[string]any{
			"id": "editor", "Question": "Lunch?", "MultiSelect": "true",
			"Option1": "Pizza", "Option2": "Sushi", "Option3": "Salad", "UserAttributionSelect": "false",
		},
	}))
	require.NoError(t, err)
	body := toJSON(t, resp.Body)
	assert.Equal(t, "botMessagePreview", gjson.Get(body, "composeExtension.type").String())
	preview := gjson.Get(body, "composeExtension.activityPreview.attachments.0.content")
	assert.Equal(t, "Lunch?", preview.Get("body.1.text").String())
	assert.True(t, preview.Get("body.3.isMultiSelect").Bool())
}

func TestPreviewEditPrefillsEditor(t *testing.T) {
	b, _, _ := newTestBot(t)
	resp, err := b.Handle(context.Background(), invoke(t, invokeSubmitAction, owner, editorPreviewValue(t, b, "edit", "true")))
	require.NoError(t, err)

	content := gjson.Get(toJSON(t, resp.Body), "task.value.card.content")
	assert.Equal(t, "Lunch?", content.Get(`body.#(id=="Question").value`).String())
	assert.Equal(t, "true", content.Get(`body.#(id=="MultiSelect").value`).String())
	assert.Equal(t, "Sushi", content.Get(`body.#(id=="Option2").value`).String())
	assert.Equal(t, "true", content.Get(`body.#(id=="UserAttributionSelect").value`).String())
}

func TestPreviewSendOnBehalfOfUser(t *testing.T) {
	b, conn, _ := newTestBot(t)
	resp, err := b.Handle(context.Background(), invoke(t, invokeSubmitAction, owner, editorPreviewValue(t, b, "send", "true")))
	require.NoError(t, err)
	assert.Nil(t, resp.Body)

	require.Len(t, conn.sent, 1)
	cd := conn.sent[0].activity.ChannelData
	require.NotNil(t, cd)
	require.Len(t, cd.OnBehalfOf, 1)
	assert.Equal(t, "29:owner", cd.OnBehalfOf[0].MRI)
	assert.Equal(t, "person", cd.OnBehalfOf[0].MentionType)

	_, err = b.Handle(context.Background(), invoke(t, invokeSubmitAction, owner, editorPreviewValue(t, b, "send", "false")))
	require.NoError(t, err)
	assert.Nil(t, conn.sent[1].activity.ChannelData)
}

func startLaptop(t *testing.T, svc *workflow.Service) workflow.Request {
	t.Helper()
	req, err := svc.Start(context.Background(), "owner@x", "Laptop", "New laptop", []string{"a@x", "b@x"})
	require.NoError(t, err)
	return req
}

func TestApprovalFlowOverwritesMessage(t *testing.T) {
	b, conn, _ := newTestBot(t)
	req := startLaptop(t, b.workflow)

	value := cardActionValue(t, b, card.ApprovalForApprover, req, "approve", map[string]any{"comment": "ok"})
	resp, err := b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, approver, value))
	require.NoError(t, err)

	body := toJSON(t, resp.Body)
	assert.Equal(t, int64(200), gjson.Get(body, "statusCode").Int())
	assert.Equal(t, card.ContentTypeAdaptiveCard, gjson.Get(body, "type").String())
	data := gjson.Get(body, "value.actions.0.data")
	assert.Equal(t, []any{"b@x"}, data.Get("approvers").Value())
	assert.Equal(t, "a@x", data.Get("approverComments.0.email").String())
	assert.Equal(t, int64(2), data.Get("version").Int())
	assert.ElementsMatch(t, []any{"29:b", "29:owner"}, gjson.Get(body, "value.refresh.userIds").Value())

	require.Len(t, conn.updated, 1)
	assert.Equal(t, "msg-1", conn.updated[0].activityID)
	assert.Equal(t, "19:conv", conn.updated[0].conversationID)

	// second approver acts on the fresh card
	var next map[string]any
	require.NoError(t, json.Unmarshal([]byte(data.Raw), &next))
	next["comment"] = "done"
	resp, err = b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, second,
		map[string]any{"action": map[string]any{"type": "Action.Execute", "verb": "approve", "data": next}}))
	require.NoError(t, err)
	body = toJSON(t, resp.Body)
	assert.Equal(t, "Approved: Approval request from owner@x", gjson.Get(body, "value.body.0.text").String())
	assert.Len(t, conn.updated, 2)
}

func TestFailedMessageUpdateDoesNotStrandRequest(t *testing.T) {
	b, conn, svc := newTestBot(t)
	conn.updateErr = &teams.StatusError{Op: "update activity", StatusCode: http.StatusServiceUnavailable}
	req := startLaptop(t, svc)

	click := cardActionValue(t, b, card.ApprovalForApprover, req, "approve", map[string]any{"comment": "ok"})
	resp, err := b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, approver, click))
	require.NoError(t, err)
	assert.Equal(t, int64(2), gjson.Get(toJSON(t, resp.Body), "value.actions.0.data.version").Int())
	require.Len(t, conn.updated, 1)

	// the approver clicks the old card again
	resp, err = b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, approver, click))
	require.NoError(t, err)
	assert.Equal(t, int64(2), gjson.Get(toJSON(t, resp.Body), "value.actions.0.data.version").Int())

	var current workflow.Request
	require.NoError(t, json.Unmarshal([]byte(gjson.Get(toJSON(t, resp.Body), "value.actions.0.data").Raw), &current))
	conn.updateErr = nil
	resp, err = b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, owner,
		cardActionValue(t, b, card.ApprovalForSender, current, "cancel", nil)))
	require.NoError(t, err)
	assert.Equal(t, "Cancelled: Approval request from owner@x", gjson.Get(toJSON(t, resp.Body), "value.body.0.text").String())

	history, err := svc.History(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestStaleApprovalIsPreconditionFailed(t *testing.T) {
	b, _, _ := newTestBot(t)
	req := startLaptop(t, b.workflow)

	_, err := b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, approver,
		cardActionValue(t, b, card.ApprovalForApprover, req, "approve", map[string]any{"comment": "ok"})))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	stale := invoke(t, invokeAdaptiveCardAction, second,
		cardActionValue(t, b, card.ApprovalForApprover, req, "approve", map[string]any{"comment": "late"}))
	b.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(toJSON(t, stale))))

	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Equal(t, "application/vnd.microsoft.error", gjson.Get(w.Body.String(), "type").String())
	assert.Equal(t, "PreconditionFailed", gjson.Get(w.Body.String(), "value.code").String())
}

func TestCancelByNonRequesterIsForbidden(t *testing.T) {
	b, _, _ := newTestBot(t)
	req := startLaptop(t, b.workflow)

	_, err := b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, approver,
		cardActionValue(t, b, card.ApprovalForSender, req, "cancel", nil)))
	require.ErrorIs(t, err, workflow.ErrForbidden)
	status, code := StatusOf(err)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Forbidden", code)

	_, err = b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, outsider,
		cardActionValue(t, b, card.ApprovalForApprover, req, "approve", map[string]any{"comment": "me too"})))
	require.ErrorIs(t, err, workflow.ErrForbidden)

	resp, err := b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, owner,
		cardActionValue(t, b, card.ApprovalForSender, req, "cancel", nil)))
	require.NoError(t, err)
	assert.Equal(t, "Cancelled: Approval request from owner@x", gjson.Get(toJSON(t, resp.Body), "value.body.0.text").String())
}

func TestRejectRendersRejectedCard(t *testing.T) {
	b, _, _ := newTestBot(t)
	req := startLaptop(t, b.workflow)

	resp, err := b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, second,
		cardActionValue(t, b, card.ApprovalForApprover, req, "reject", map[string]any{"comment": "no budget"})))
	require.NoError(t, err)
	assert.Contains(t, toJSON(t, resp.Body), "no budget")
	assert.Contains(t, toJSON(t, resp.Body), "b@x")
}

func TestUpdateBySenderRendersBaseCard(t *testing.T) {
	b, conn, _ := newTestBot(t)
	req := startLaptop(t, b.workflow)

	resp, err := b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, owner,
		cardActionValue(t, b, card.ApprovalForSender, req, "update", map[string]any{"title": "Desk", "description": "Standing"})))
	require.NoError(t, err)
	data := gjson.Get(toJSON(t, resp.Body), "value.refresh.action.data")
	assert.Equal(t, "approvalBase", data.Get("cardId").String())
	assert.Equal(t, "Desk", data.Get("title").String())
	assert.Len(t, conn.updated, 1)
}

func TestRefreshIsViewerSpecific(t *testing.T) {
	b, conn, _ := newTestBot(t)
	req := startLaptop(t, b.workflow)

	resp, err := b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, owner,
		cardActionValue(t, b, card.ApprovalBase, req, "refresh", nil)))
	require.NoError(t, err)
	body := toJSON(t, resp.Body)
	assert.Equal(t, "approvalForSender", gjson.Get(body, "value.refresh.action.data.cardId").String())
	assert.Equal(t, []any{"29:owner"}, gjson.Get(body, "value.refresh.userIds").Value())

	resp, err = b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, approver,
		cardActionValue(t, b, card.ApprovalBase, req, "refresh", nil)))
	require.NoError(t, err)
	assert.Equal(t, "approvalForApprover", gjson.Get(toJSON(t, resp.Body), "value.refresh.action.data.cardId").String())
	assert.Empty(t, conn.updated)
}

func TestUnknownCard(t *testing.T) {
	b, _, _ := newTestBot(t)
	a := invoke(t, invokeAdaptiveCardAction, owner, map[string]any{
		"action": map[string]any{"verb": "approve", "data": map[string]any{"cardId": "bogus"}},
	})
	_, err := b.Handle(context.Background(), a)
	require.EqualError(t, err, "Unknown card bogus")

	w := httptest.NewRecorder()
	b.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(toJSON(t, a))))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Unknown card bogus", gjson.Get(w.Body.String(), "value.message").String())
}

func TestUnknownVerb(t *testing.T) {
	b, _, _ := newTestBot(t)
	req := startLaptop(t, b.workflow)

	value := cardActionValue(t, b, card.ApprovalForApprover, req, "approve", nil)
	value["action"].(map[string]any)["verb"] = "escalate"
	_, err := b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, approver, value))
	require.ErrorIs(t, err, workflow.ErrUnknownVerb)
	assert.Equal(t, "unknown verb 'escalate' for card approvalForApprover", err.Error())
}

func TestInvalidApprovalPayload(t *testing.T) {
	b, _, _ := newTestBot(t)
	_, err := b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, approver, map[string]any{
		"action": map[string]any{"verb": "approve", "data": map[string]any{"cardId": "approvalForApprover", "approvers": "a@x"}},
	}))
	require.ErrorIs(t, err, workflow.ErrInvalidPayload)
}

func TestSearchRefreshAndMessage(t *testing.T) {
	b, conn, _ := newTestBot(t)
	search := func(mode string) map[string]any {
		return map[string]any{"action": map[string]any{"verb": "search", "data": map[string]any{"cardId": "botSearch", "searchResult": mode}}}
	}

	resp, err := b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, owner, search("refresh")))
	require.NoError(t, err)
	body := toJSON(t, resp.Body)
	assert.Equal(t, card.ContentTypeAdaptiveCard, gjson.Get(body, "type").String())
	assert.Equal(t, int64(3), gjson.Get(body, "value.body.#").Int()-1)
	assert.Empty(t, conn.sent)

	resp, err = b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, owner, search("message")))
	require.NoError(t, err)
	body = toJSON(t, resp.Body)
	assert.Equal(t, card.ContentTypeMessage, gjson.Get(body, "type").String())
	assert.Equal(t, "Your query request was sent.", gjson.Get(body, "value").String())
	assert.Len(t, conn.sent, 1)
}

func TestSearchResultDetail(t *testing.T) {
	b, _, _ := newTestBot(t)
	resp, err := b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, owner, map[string]any{
		"action": map[string]any{"verb": "select", "data": map[string]any{"cardId": "botSearchResults", "id": "2"}},
	}))
	require.NoError(t, err)
	assert.Contains(t, toJSON(t, resp.Body), "Description of part 2")
}

func TestProcurementRequestStartsApproval(t *testing.T) {
	b, conn, _ := newTestBot(t)
	resp, err := b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, owner, map[string]any{
		"action": map[string]any{"verb": "procurementRequest", "data": map[string]any{"cardId": "botSearchResult", "id": "7"}},
	}))
	require.NoError(t, err)

	data := gjson.Get(toJSON(t, resp.Body), "value.refresh.action.data")
	assert.Equal(t, "Procurement request approval", data.Get("title").String())
	assert.Equal(t, "Asset ID: 7", data.Get("description").String())
	assert.Equal(t, []any{"procure-c@x"}, data.Get("approvers").Value())
	assert.Len(t, conn.updated, 1)

	_, err = b.Handle(context.Background(), invoke(t, invokeAdaptiveCardAction, owner, map[string]any{
		"action": map[string]any{"verb": "buy", "data": map[string]any{"cardId": "botSearchResult", "id": "7"}},
	}))
	require.ErrorIs(t, err, workflow.ErrUnknownVerb)
}

func TestCardButtonClickedNotifiesApprovers(t *testing.T) {
	b, conn, _ := newTestBot(t)
	_, err := b.Handle(context.Background(), invoke(t, invokeCardButtonClicked, owner, map[string]any{
		"title": "Laptop", "description": "", "approvers": []string{"a@x", "b@x"},
	}))
	require.NoError(t, err)
	b.Wait()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.Len(t, conn.created, 2)
	assert.Equal(t, "tenant", conn.created[0].TenantID)
	assert.Equal(t, "28:bot", conn.created[0].Bot.ID)

	var toCaller, toApprovers int
	for _, s := range conn.sent {
		switch {
		case s.conversationID == "19:conv":
			toCaller++
			assert.Equal(t, "Approvers are notified.", s.activity.Text)
		default:
			toApprovers++
			assert.Contains(t, s.activity.Text, `Please approve "Laptop". Click here for details: https://teams.microsoft.com/l/message/19:channel/msg-1?`)
		}
	}
	assert.Equal(t, 1, toCaller)
	assert.Equal(t, 2, toApprovers)
}

func TestDeeplink(t *testing.T) {
	link := Deeplink(baseActivity(owner))
	assert.Equal(t, "https://teams.microsoft.com/l/message/19:channel/msg-1?parentMessageId=msg-1&tenantId=tenant", link)
}

func TestServeHTTPRejectsBadBody(t *testing.T) {
	b, _, _ := newTestBot(t)
	w := httptest.NewRecorder()
	b.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	b.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/messages", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServeHTTPMessageIsEmpty200(t *testing.T) {
	b, _, _ := newTestBot(t)
	w := httptest.NewRecorder()
	b.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(`{"type":"message","text":"hi"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&card.UnknownCardError{ID: "x"}, http.StatusBadRequest},
		{workflow.ErrInvalidPayload, http.StatusBadRequest},
		{workflow.ErrForbidden, http.StatusForbidden},
		{workflow.ErrStaleCard, http.StatusPreconditionFailed},
		{ErrNotImplemented, http.StatusNotImplemented},
		{ErrSenderNotFound, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := StatusOf(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}
