package chat

import (
	"sort"
	"sync"
	"time"
)

// ConversationKind distinguishes the two room flavors; it selects the
// join/leave call shape on the wire.
type ConversationKind string

const (
	KindUserBusiness     ConversationKind = "user-business"
	KindBusinessBusiness ConversationKind = "business-business"
)

// IsBusiness reports whether the kind uses the business-conversation
// call shape.
func (k ConversationKind) IsBusiness() bool {
	return k == KindBusinessBusiness
}

// ConversationSummary is the list-row state for one conversation:
// last-message preview and unread badge.
type ConversationSummary struct {
	ConversationID string           `json:"conversationId"`
	Kind           ConversationKind `json:"kind"`
	Title          string           `json:"title,omitempty"`
	LastMessage    string           `json:"lastMessage,omitempty"`
	LastFrom       string           `json:"lastFrom,omitempty"`
	LastTimestamp  time.Time        `json:"lastTimestamp,omitempty"`
	Unread         int              `json:"unread"`
}

// SummaryStore holds conversation-list state. Messages for inactive
// conversations land here instead of in a message log.
type SummaryStore struct {
	mu        sync.Mutex
	summaries map[string]*ConversationSummary
}

// NewSummaryStore creates an empty store.
func NewSummaryStore() *SummaryStore {
	return &SummaryStore{summaries: make(map[string]*ConversationSummary)}
}

// SetAll replaces the store contents from a server fetch.
func (s *SummaryStore) SetAll(list []ConversationSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = make(map[string]*ConversationSummary, len(list))
	for i := range list {
		cs := list[i]
		s.summaries[cs.ConversationID] = &cs
	}
}

// Ingest updates the preview and increments the unread badge for a
// message that arrived while its conversation was not active.
func (s *SummaryStore) Ingest(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.summaries[m.ConversationID]
	if !ok {
		cs = &ConversationSummary{ConversationID: m.ConversationID}
		s.summaries[m.ConversationID] = cs
	}
	cs.LastMessage = preview(m)
	cs.LastFrom = m.From
	cs.LastTimestamp = m.Timestamp
	cs.Unread++
}

// MarkRead zeroes the unread badge for a conversation.
func (s *SummaryStore) MarkRead(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok := s.summaries[conversationID]; ok {
		cs.Unread = 0
	}
}

// Get returns a copy of one conversation's summary.
func (s *SummaryStore) Get(conversationID string) (ConversationSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.summaries[conversationID]
	if !ok {
		return ConversationSummary{}, false
	}
	return *cs, true
}

// List returns all summaries, most recently active first.
func (s *SummaryStore) List() []ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConversationSummary, 0, len(s.summaries))
	for _, cs := range s.summaries {
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastTimestamp.After(out[j].LastTimestamp)
	})
	return out
}

// TotalUnread sums the unread badges across conversations.
func (s *SummaryStore) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, cs := range s.summaries {
		total += cs.Unread
	}
	return total
}

func preview(m Message) string {
	if m.Text != "" {
		return m.Text
	}
	if m.Attachment != nil {
		return "[" + m.Attachment.Kind + "]"
	}
	return ""
}
