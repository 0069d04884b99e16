package notification

import (
	"fmt"
	"strings"
)

func groupLabel(p Payload) string {
	if p.GroupName != "" {
		return p.GroupName
	}
	return fmt.Sprintf("group #%d", p.GroupID)
}

func actorLabel(p Payload) string {
	if p.ActorName != "" {
		return p.ActorName
	}
	return "Someone"
}

// renderInvite builds the invitation message sent to an outside recipient
func renderInvite(p Payload) (subject, body string) {
	subject = fmt.Sprintf("You're invited to join %s on Bankroll", groupLabel(p))

	var b strings.Builder
	fmt.Fprintf(&b, "%s invited you to join %s.", actorLabel(p), groupLabel(p))
	if p.Message != "" {
		fmt.Fprintf(&b, "\n\n\"%s\"", p.Message)
	}
	if p.Link != "" {
		fmt.Fprintf(&b, "\n\nAccept the invitation: %s", p.Link)
	}
	if p.ExpiresAt != nil {
		fmt.Fprintf(&b, "\n\nThis invitation expires on %s.", p.ExpiresAt.Format("Jan 2, 2006"))
	}
	return subject, b.String()
}

// renderEvent builds the subject and feed text for a user-targeted event
func renderEvent(kind NotificationType, p Payload) (subject, body string) {
	group := groupLabel(p)
	actor := actorLabel(p)

	switch kind {
	case NotificationTypeGroupInvite:
		return "New group invitation", fmt.Sprintf("%s invited you to join group: %s", actor, group)
	case NotificationTypeInviteAccepted:
		return "Invitation accepted", fmt.Sprintf("%s accepted your invitation to %s", actor, group)
	case NotificationTypeInviteDeclined:
		return "Invitation declined", fmt.Sprintf("%s declined your invitation to %s", actor, group)
	case NotificationTypeJoinRequested:
		return "New join request", fmt.Sprintf("%s asked to join %s", actor, group)
	case NotificationTypeJoinApproved:
		return "Join request approved", fmt.Sprintf("Your request to join %s was approved", group)
	case NotificationTypeJoinRejected:
		return "Join request declined", fmt.Sprintf("Your request to join %s was declined", group)
	case NotificationTypeMemberJoined:
		return "New member", fmt.Sprintf("%s joined %s", actor, group)
	}
	return "Bankroll", group
}
