// Package teams models the Bot Framework activity schema and talks to the
// Bot Connector REST API on behalf of the bot.
package teams

import "encoding/json"

const (
	ActivityMessage            = "message"
	ActivityInvoke             = "invoke"
	ActivityInvokeResponse     = "invokeResponse"
	ActivityConversationUpdate = "conversationUpdate"
)

const (
	ConversationPersonal  = "personal"
	ConversationGroupChat = "groupChat"
	ConversationChannel   = "channel"
)

type ChannelAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
	Role        string `json:"role,omitempty"`
}

type ConversationAccount struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
}

type Entity struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Mentioned *ChannelAccount `json:"mentioned,omitempty"`
}

type TeamInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type TenantInfo struct {
	ID string `json:"id"`
}

type ChannelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type ChannelData struct {
	Team         *TeamInfo     `json:"team,omitempty"`
	Channel      *ChannelInfo  `json:"channel,omitempty"`
	Tenant       *TenantInfo   `json:"tenant,omitempty"`
	OnBehalfOf   []OnBehalfOf  `json:"onBehalfOf,omitempty"`
	EventType    string        `json:"eventType,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

type Notification struct {
	Alert bool `json:"alert"`
}

// OnBehalfOf attributes a bot message to a user.
type OnBehalfOf struct {
	ItemID      int    `json:"itemid"`
	MentionType string `json:"mentionType"`
	MRI         string `json:"mri"`
	DisplayName string `json:"displayName"`
}

// Attachment is an outbound or inbound card attachment.
type Attachment struct {
	ID          string `json:"id,omitempty"`
	ContentType string `json:"contentType"`
	Content     any    `json:"content,omitempty"`
}

// Activity is the subset of the Bot Framework activity the bot reads and
// writes.
type Activity struct {
	Type         string              `json:"type"`
	ID           string              `json:"id,omitempty"`
	Name         string              `json:"name,omitempty"`
	Timestamp    string              `json:"timestamp,omitempty"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	ChannelID    string              `json:"channelId,omitempty"`
	From         ChannelAccount      `json:"from"`
	Recipient    ChannelAccount      `json:"recipient"`
	Conversation ConversationAccount `json:"conversation"`
	ReplyToID    string              `json:"replyToId,omitempty"`
	Text         string              `json:"text,omitempty"`
	TextFormat   string              `json:"textFormat,omitempty"`
	InputHint    string              `json:"inputHint,omitempty"`
	Entities     []Entity            `json:"entities,omitempty"`
	Attachments  []Attachment        `json:"attachments,omitempty"`
	MembersAdded []ChannelAccount    `json:"membersAdded,omitempty"`
	ChannelData  *ChannelData        `json:"channelData,omitempty"`
	Value        json.RawMessage     `json:"value,omitempty"`
}

// Member is a roster entry as returned by the paged members endpoint.
type Member struct {
	ID                string `json:"id"`
	Name              string `json:"name,omitempty"`
	AADObjectID       string `json:"aadObjectId,omitempty"`
	Email             string `json:"email,omitempty"`
	UserPrincipalName string `json:"userPrincipalName,omitempty"`
	GivenName         string `json:"givenName,omitempty"`
	Surname           string `json:"surname,omitempty"`
	TenantID          string `json:"tenantId,omitempty"`
}

// ConversationParameters opens a new conversation, usually a 1:1 chat.
type ConversationParameters struct {
	IsGroup     bool             `json:"isGroup"`
	Bot         ChannelAccount   `json:"bot"`
	Members     []ChannelAccount `json:"members"`
	TenantID    string           `json:"tenantId,omitempty"`
	ChannelData *ChannelData     `json:"channelData,omitempty"`
}

type ConversationResource struct {
	ID         string `json:"id"`
	ActivityID string `json:"activityId,omitempty"`
	ServiceURL string `json:"serviceUrl,omitempty"`
}

type ResourceResponse struct {
	ID string `json:"id"`
}

// RosterID is the conversation whose members are enumerated for a. Channel
// conversations enumerate the owning team.
func RosterID(a Activity) string {
	if a.ChannelData != nil && a.ChannelData.Team != nil && a.ChannelData.Team.ID != "" {
		return a.ChannelData.Team.ID
	}
	return a.Conversation.ID
}

// TenantOf returns the tenant that sent a.
func TenantOf(a Activity) string {
	if a.Conversation.TenantID != "" {
		return a.Conversation.TenantID
	}
	if a.ChannelData != nil && a.ChannelData.Tenant != nil {
		return a.ChannelData.Tenant.ID
	}
	return ""
}
