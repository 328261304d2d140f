package workflow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ronappleton/teams-approval-bot/internal/card"
)

// NewRequest builds a pending request from the compose form. Approvers are
// trimmed and deduplicated and the requester is never asked to approve their
// own request.
func NewRequest(from, title, description string, approvers []string) (Request, error) {
	from = strings.TrimSpace(from)
	title = strings.TrimSpace(title)
	if from == "" {
		return Request{}, fmt.Errorf("%w: requester is empty", ErrInvalidRequest)
	}
	if title == "" {
		return Request{}, fmt.Errorf("%w: title is empty", ErrInvalidRequest)
	}
	cleaned := make([]string, 0, len(approvers))
	for _, a := range approvers {
		cleaned = append(cleaned, strings.TrimSpace(a))
	}
	cleaned = without(unique(cleaned), from)
	if len(cleaned) == 0 {
		return Request{}, fmt.Errorf("%w: no approvers", ErrInvalidRequest)
	}

	state, err := fire(StateDraft, eventSubmit)
	if err != nil {
		return Request{}, err
	}
	return Request{
		ID:               newID(),
		Version:          1,
		State:            state,
		From:             from,
		Title:            title,
		Description:      strings.TrimSpace(description),
		Approvers:        cleaned,
		ApproverComments: []Comment{},
	}, nil
}

// ParseApprovers splits the comma separated approver input of the compose
// form.
func ParseApprovers(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Apply computes the next request for act. req is never modified.
func Apply(req Request, act Action) (Outcome, error) {
	if req.State == "" {
		req.State = StatePending
	}
	switch act.Verb {
	case VerbRefresh:
		if err := allow(req.State, eventRefresh); err != nil {
			return Outcome{}, err
		}
		return View(req, act.Actor), nil
	case VerbApprove:
		return approve(req, act)
	case VerbReject:
		return reject(req, act)
	case VerbCancel:
		return cancel(req, act)
	case VerbUpdate:
		return update(req, act)
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownVerb, act.Verb)
	}
}

// View projects req for viewer without changing it.
func View(req Request, viewer string) Outcome {
	out := Outcome{Request: req.clone(), Audience: []string{viewer}}
	switch {
	case req.State == StateApproved:
		out.Card = card.ApprovalApproved
	case req.State == StateRejected:
		out.Card = card.ApprovalRejected
	case req.State == StateCancelled:
		out.Card = card.ApprovalCancelled
	case viewer != "" && viewer == req.From:
		out.Card = card.ApprovalForSender
	default:
		out.Card = card.ApprovalForApprover
	}
	return out
}

func approve(req Request, act Action) (Outcome, error) {
	if err := allow(req.State, eventApprove); err != nil {
		return Outcome{}, err
	}
	if !req.isApprover(act.Actor) {
		return Outcome{}, fmt.Errorf("%w: %s is not a remaining approver", ErrForbidden, act.Actor)
	}
	next := req.clone()
	next.ApproverComments = append(next.ApproverComments, Comment{Email: act.Actor, Comment: act.Comment})
	next.Approvers = without(next.Approvers, act.Actor)
	next.Version++

	if len(next.Approvers) > 0 {
		state, err := fire(req.State, eventApprove)
		if err != nil {
			return Outcome{}, err
		}
		next.State = state
		return Outcome{
			Request:   next,
			Card:      card.ApprovalForApprover,
			Audience:  unique(append([]string{next.From}, next.Approvers...)),
			Broadcast: true,
		}, nil
	}
	state, err := fire(req.State, eventComplete)
	if err != nil {
		return Outcome{}, err
	}
	next.State = state
	return Outcome{Request: next, Card: card.ApprovalApproved, Audience: next.Participants(), Broadcast: true}, nil
}

func reject(req Request, act Action) (Outcome, error) {
	if err := allow(req.State, eventReject); err != nil {
		return Outcome{}, err
	}
	if !req.isApprover(act.Actor) {
		return Outcome{}, fmt.Errorf("%w: %s is not a remaining approver", ErrForbidden, act.Actor)
	}
	state, err := fire(req.State, eventReject)
	if err != nil {
		return Outcome{}, err
	}
	next := req.clone()
	next.State = state
	next.RejectedBy = act.Actor
	next.Comment = act.Comment
	next.Version++
	return Outcome{Request: next, Card: card.ApprovalRejected, Audience: next.Participants(), Broadcast: true}, nil
}

func cancel(req Request, act Action) (Outcome, error) {
	if err := allow(req.State, eventCancel); err != nil {
		return Outcome{}, err
	}
	if act.Actor != req.From {
		return Outcome{}, fmt.Errorf("%w: only %s can cancel", ErrForbidden, req.From)
	}
	state, err := fire(req.State, eventCancel)
	if err != nil {
		return Outcome{}, err
	}
	next := req.clone()
	next.State = state
	next.Version++
	return Outcome{Request: next, Card: card.ApprovalCancelled, Audience: next.Participants(), Broadcast: true}, nil
}

func update(req Request, act Action) (Outcome, error) {
	if err := allow(req.State, eventUpdate); err != nil {
		return Outcome{}, err
	}
	if act.Actor != req.From {
		return Outcome{}, fmt.Errorf("%w: only %s can update", ErrForbidden, req.From)
	}
	title := strings.TrimSpace(act.Title)
	if title == "" {
		return Outcome{}, fmt.Errorf("%w: title is empty", ErrInvalidRequest)
	}
	state, err := fire(req.State, eventUpdate)
	if err != nil {
		return Outcome{}, err
	}
	next := req.clone()
	next.State = state
	next.Title = title
	next.Description = strings.TrimSpace(act.Description)
	next.Version++
	return Outcome{
		Request:   next,
		Card:      card.ApprovalBase,
		Audience:  unique(append([]string{next.From}, next.Approvers...)),
		Broadcast: true,
	}, nil
}

// CardData is the template data for every approval card. userIDs fills the
// refresh audience of the card.
func CardData(req Request, userIDs []string) map[string]any {
	facts := make([]map[string]string, 0, len(req.Approvers))
	for i, a := range req.Approvers {
		facts = append(facts, map[string]string{"title": strconv.Itoa(i + 1), "value": a})
	}
	approvers := req.Approvers
	if approvers == nil {
		approvers = []string{}
	}
	comments := req.ApproverComments
	if comments == nil {
		comments = []Comment{}
	}
	if userIDs == nil {
		userIDs = []string{}
	}
	return map[string]any{
		"requestId":        req.ID,
		"version":          req.Version,
		"state":            req.State,
		"from":             req.From,
		"title":            req.Title,
		"description":      req.Description,
		"approvers":        approvers,
		"approverFacts":    facts,
		"approverComments": comments,
		"rejectedBy":       req.RejectedBy,
		"comment":          req.Comment,
		"userIds":          userIDs,
	}
}
