package bot

import (
	"context"
	"sort"

	"github.com/ronappleton/teams-approval-bot/internal/teams"
)

type roster []teams.Member

func (b *Bot) roster(ctx context.Context, a teams.Activity) (roster, error) {
	members, err := b.connector.Members(ctx, a.ServiceURL, teams.RosterID(a))
	if err != nil {
		return nil, err
	}
	return roster(members), nil
}

func emailOf(m teams.Member) string {
	if m.Email != "" {
		return m.Email
	}
	return m.UserPrincipalName
}

func sameUser(m teams.Member, who teams.ChannelAccount) bool {
	if who.AADObjectID != "" {
		return m.AADObjectID == who.AADObjectID
	}
	return m.ID == who.ID
}

// sender resolves the email of who.
func (r roster) sender(who teams.ChannelAccount) (string, error) {
	for _, m := range r {
		if sameUser(m, who) && emailOf(m) != "" {
			return emailOf(m), nil
		}
	}
	return "", ErrSenderNotFound
}

// candidates are the sorted emails of everyone but who.
func (r roster) candidates(who teams.ChannelAccount) []string {
	out := make([]string, 0, len(r))
	for _, m := range r {
		if sameUser(m, who) || emailOf(m) == "" {
			continue
		}
		out = append(out, emailOf(m))
	}
	sort.Strings(out)
	return out
}

// idsFor returns the roster ids of the members whose email is in emails.
func (r roster) idsFor(emails []string) []string {
	want := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		want[e] = struct{}{}
	}
	out := []string{}
	for _, m := range r {
		if _, ok := want[emailOf(m)]; ok {
			out = append(out, m.ID)
		}
	}
	return out
}

func (r roster) withEmails(emails []string) []teams.Member {
	want := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		want[e] = struct{}{}
	}
	var out []teams.Member
	for _, m := range r {
		if _, ok := want[emailOf(m)]; ok {
			out = append(out, m)
		}
	}
	return out
}
