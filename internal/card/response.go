package card

import (
	"encoding/json"
	"errors"
	"net/http"
)

const (
	ContentTypeAdaptiveCard = "application/vnd.microsoft.card.adaptive"
	ContentTypeHeroCard     = "application/vnd.microsoft.card.hero"
	ContentTypeMessage      = "application/vnd.microsoft.activity.message"
	ContentTypeError        = "application/vnd.microsoft.error"
)

// ErrNotImplemented is returned for response kinds the bot does not produce.
var ErrNotImplemented = errors.New("not implemented")

// Attachment is a card attachment on an activity or compose result.
type Attachment struct {
	ContentType string      `json:"contentType"`
	Content     any         `json:"content"`
	Preview     *Attachment `json:"preview,omitempty"`
}

// Adaptive wraps a rendered card as an attachment.
func Adaptive(card json.RawMessage) Attachment {
	return Attachment{ContentType: ContentTypeAdaptiveCard, Content: card}
}

// HeroCard is the content of a hero card attachment.
type HeroCard struct {
	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Hero builds a hero card attachment that also serves as its own preview.
func Hero(title, subtitle, text string) Attachment {
	hero := HeroCard{Title: title, Subtitle: subtitle, Text: text}
	preview := Attachment{ContentType: ContentTypeHeroCard, Content: hero}
	return Attachment{ContentType: ContentTypeHeroCard, Content: hero, Preview: &preview}
}

// TaskModuleSize sets the dimensions and title of a continued task module.
type TaskModuleSize struct {
	Title  string
	Height int
	Width  int
}

type TaskModuleResponse struct {
	Task TaskModuleContinue `json:"task"`
}

type TaskModuleContinue struct {
	Type  string         `json:"type"`
	Value TaskModuleInfo `json:"value"`
}

type TaskModuleInfo struct {
	Card   Attachment `json:"card"`
	Height int        `json:"height"`
	Width  int        `json:"width"`
	Title  string     `json:"title"`
}

// ToTaskModule continues the task module with attachment.
func ToTaskModule(attachment Attachment, size TaskModuleSize) TaskModuleResponse {
	return TaskModuleResponse{Task: TaskModuleContinue{
		Type: "continue",
		Value: TaskModuleInfo{
			Card:   attachment,
			Height: size.Height,
			Width:  size.Width,
			Title:  size.Title,
		},
	}}
}

type ComposeExtensionResponse struct {
	ComposeExtension ComposeExtensionResult `json:"composeExtension"`
}

type ComposeExtensionResult struct {
	Type             string           `json:"type"`
	AttachmentLayout string           `json:"attachmentLayout,omitempty"`
	Attachments      []Attachment     `json:"attachments,omitempty"`
	ActivityPreview  *ActivityPreview `json:"activityPreview,omitempty"`
}

type ActivityPreview struct {
	Type        string       `json:"type"`
	Attachments []Attachment `json:"attachments"`
	InputHint   string       `json:"inputHint"`
}

// ToComposeResult inserts attachment into the compose box.
func ToComposeResult(attachment Attachment) ComposeExtensionResponse {
	return ComposeExtensionResponse{ComposeExtension: ComposeExtensionResult{
		Type:             "result",
		AttachmentLayout: "list",
		Attachments:      []Attachment{attachment},
	}}
}

// ToBotMessagePreview asks Teams to show attachment as an editable preview.
func ToBotMessagePreview(attachment Attachment) ComposeExtensionResponse {
	return ComposeExtensionResponse{ComposeExtension: ComposeExtensionResult{
		Type: "botMessagePreview",
		ActivityPreview: &ActivityPreview{
			Type:        "message",
			Attachments: []Attachment{attachment},
			InputHint:   "expectingInput",
		},
	}}
}

// InvokeResponse is the Universal Action response to an adaptiveCard/action.
type InvokeResponse struct {
	StatusCode int    `json:"statusCode"`
	Type       string `json:"type"`
	Value      any    `json:"value"`
}

type InvokeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToRefresh replaces the invoking card with card.
func ToRefresh(card json.RawMessage) InvokeResponse {
	return InvokeResponse{StatusCode: http.StatusOK, Type: ContentTypeAdaptiveCard, Value: card}
}

// ToMessage shows message to the invoking user.
func ToMessage(message string) InvokeResponse {
	return InvokeResponse{StatusCode: http.StatusOK, Type: ContentTypeMessage, Value: message}
}

// ToError reports a failed action to the invoking client.
func ToError(status int, code, message string) InvokeResponse {
	return InvokeResponse{
		StatusCode: status,
		Type:       ContentTypeError,
		Value:      InvokeError{Code: code, Message: message},
	}
}

// ResponseKind selects how a transition's card reaches the client.
type ResponseKind string

const (
	RespondRefresh        ResponseKind = "Refresh"
	RespondUpdateActivity ResponseKind = "UpdateActivity"
	RespondReply          ResponseKind = "Reply"
)

// Respond wraps card according to kind. Only Refresh is supported; the other
// kinds are delivered through the connector instead.
func Respond(kind ResponseKind, card json.RawMessage) (InvokeResponse, error) {
	switch kind {
	case RespondRefresh:
		return ToRefresh(card), nil
	case RespondUpdateActivity, RespondReply:
		return InvokeResponse{}, ErrNotImplemented
	default:
		return InvokeResponse{}, errors.New("unknown response type " + string(kind))
	}
}
