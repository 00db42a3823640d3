// Package notify merges fetched and pushed notifications into one
// ordered, deduplicated, unread-counted feed.
package notify

import "time"

// Type enumerates notification flavors.
type Type string

const (
	TypeMessage        Type = "message"
	TypeRecommendation Type = "recommendation"
	TypeTaskReminder   Type = "taskReminder"
	TypeOther          Type = "other"
)

// Notification is one feed entry. ThreadID maps to a conversation id.
type Notification struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"threadId"`
	Type        Type      `json:"type"`
	Text        string    `json:"text"`
	Read        bool      `json:"read"`
	UnreadCount int       `json:"unreadCount"`
	Timestamp   time.Time `json:"timestamp"`
}

// normalize clamps malformed fields from either push channel or fetch.
func normalize(n Notification) Notification {
	switch n.Type {
	case TypeMessage, TypeRecommendation, TypeTaskReminder:
	default:
		n.Type = TypeOther
	}
	if n.UnreadCount < 0 {
		n.UnreadCount = 0
	}
	if n.Read {
		n.UnreadCount = 0
	}
	return n
}

// applySupersession merges an incoming notification into an existing
// feed, returning the new feed (most recent first). The rules:
//
//   - an incoming recommendation replaces every existing entry for its
//     thread and becomes the sole representative notification;
//   - an incoming message is dropped when a recommendation already
//     represents its thread (the pending AI suggestion stands in for
//     the raw inbound message);
//   - otherwise the incoming entry is inserted at the head unless an
//     existing entry has the same id or the same (threadId, type) pair,
//     which would mean duplicate delivery from overlapping channels.
func applySupersession(existing []Notification, incoming Notification) []Notification {
	incoming = normalize(incoming)

	if incoming.Type == TypeRecommendation {
		out := make([]Notification, 0, len(existing)+1)
		out = append(out, incoming)
		for _, n := range existing {
			if n.ThreadID != incoming.ThreadID {
				out = append(out, n)
			}
		}
		return out
	}

	for _, n := range existing {
		if n.ID == incoming.ID && n.ID != "" {
			return existing
		}
		if n.ThreadID == incoming.ThreadID {
			if n.Type == TypeRecommendation && incoming.Type == TypeMessage {
				return existing
			}
			if n.Type == incoming.Type {
				return existing
			}
		}
	}

	out := make([]Notification, 0, len(existing)+1)
	out = append(out, incoming)
	out = append(out, existing...)
	return out
}

// filterSuperseded applies the supersession rule to a full fetched
// list: message entries whose thread also carries a recommendation are
// dropped.
func filterSuperseded(list []Notification) []Notification {
	recommended := make(map[string]bool)
	for _, n := range list {
		if n.Type == TypeRecommendation {
			recommended[n.ThreadID] = true
		}
	}

	out := make([]Notification, 0, len(list))
	for _, n := range list {
		if n.Type == TypeMessage && recommended[n.ThreadID] {
			continue
		}
		out = append(out, n)
	}
	return out
}
