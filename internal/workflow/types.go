// Package workflow holds the approval request state machine. All request
// state travels in the card payload; Apply is a pure function of that payload
// and the click that produced it.
package workflow

import (
	"errors"

	"github.com/ronappleton/teams-approval-bot/internal/card"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrTerminal          = errors.New("approval request is closed")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrStaleCard         = errors.New("card is out of date")
	ErrInvalidRequest    = errors.New("invalid approval request")
	ErrUnknownVerb       = errors.New("unknown verb")
	ErrReplayed          = errors.New("revision already committed")
)

type State string

const (
	StateDraft     State = "draft"
	StatePending   State = "pending"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further action is accepted in s.
func (s State) Terminal() bool {
	return s == StateApproved || s == StateRejected || s == StateCancelled
}

type Verb string

const (
	VerbSubmit  Verb = "submit"
	VerbApprove Verb = "approve"
	VerbReject  Verb = "reject"
	VerbCancel  Verb = "cancel"
	VerbUpdate  Verb = "update"
	VerbRefresh Verb = "refresh"
)

type Comment struct {
	Email   string `json:"email"`
	Comment string `json:"comment"`
}

// Request is an approval request as echoed back by the card. Approvers are
// the ones still to decide; ApproverComments are the ones who approved.
type Request struct {
	ID               string    `json:"requestId"`
	Version          int       `json:"version"`
	State            State     `json:"state"`
	From             string    `json:"from"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Approvers        []string  `json:"approvers"`
	ApproverComments []Comment `json:"approverComments"`
	RejectedBy       string    `json:"rejectedBy,omitempty"`
	Comment          string    `json:"comment,omitempty"`
}

func (r Request) clone() Request {
	out := r
	out.Approvers = append([]string{}, r.Approvers...)
	out.ApproverComments = append([]Comment{}, r.ApproverComments...)
	return out
}

func (r Request) isApprover(email string) bool {
	for _, a := range r.Approvers {
		if a == email {
			return true
		}
	}
	return false
}

// Participants lists the requester, remaining approvers and those who already
// decided, without duplicates.
func (r Request) Participants() []string {
	out := []string{r.From}
	out = append(out, r.Approvers...)
	for _, c := range r.ApproverComments {
		out = append(out, c.Email)
	}
	if r.RejectedBy != "" {
		out = append(out, r.RejectedBy)
	}
	return unique(out)
}

// Action is one click on an approval card. Actor is the resolved email of
// the invoking user.
type Action struct {
	Verb        Verb
	Actor       string
	Comment     string
	Title       string
	Description string
}

// Outcome is the result of applying an action: the next request, the card to
// render and who should see it.
type Outcome struct {
	Request   Request
	Card      card.ID
	Audience  []string
	Broadcast bool
}

func unique(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func without(items []string, drop string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item != drop {
			out = append(out, item)
		}
	}
	return out
}
