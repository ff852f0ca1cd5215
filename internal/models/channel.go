package models

import (
	"time"
)

type ChannelCategory string

const (
	ChannelCategoryGeneral  ChannelCategory = "general"
	ChannelCategoryLocation ChannelCategory = "location"
	ChannelCategoryPrivate  ChannelCategory = "private"
	ChannelCategorySystem   ChannelCategory = "system"
	ChannelCategoryRules    ChannelCategory = "rules"
)

// Channel is a named scope of messages within a campaign. LastReadAt and
// UnreadCount are annotated locally from the viewing user's read state.
type Channel struct {
	ID            string          `json:"id"`
	CampaignID    string          `json:"campaignId,omitempty"`
	Name          string          `json:"name"`
	Category      ChannelCategory `json:"category"`
	Members       []string        `json:"members,omitempty"`
	LastMessageAt *time.Time      `json:"lastMessageAt,omitempty"`
	LastReadAt    *time.Time      `json:"lastReadAt,omitempty"`
	UnreadCount   int             `json:"unreadCount"`
}

// HistoryQuery pages through a channel's messages. Before and After are
// message identifiers.
type HistoryQuery struct {
	Limit  int
	Before string
	After  string
}
