package store

import (
	"encoding/json"
	"time"
)

type ItemKind string

const (
	ItemProposal ItemKind = "proposal"
	ItemTopic    ItemKind = "topic"
)

// Group links the proposals and discussion topics that describe one
// governance initiative.
type Group struct {
	ID        string
	Name      string
	Items     []GroupItem
	CreatedAt time.Time
}

// GroupItem references a proposal (ScopeID is its governor) or a topic
// (ScopeID is its forum).
type GroupItem struct {
	Kind       ItemKind `json:"kind"`
	ExternalID string   `json:"externalId"`
	ScopeID    string   `json:"scopeId"`
}

type Proposal struct {
	ID             string
	ExternalID     string
	GovernorID     string
	Title          string
	Body           string
	Author         string
	AuthorName     string
	AuthorAvatar   string
	URL            string
	VoteType       string
	Choices        []string
	CreatedAt      time.Time
	StartAt        time.Time
	EndAt          time.Time
	BlockCreatedAt *int64
}

// Onchain reports whether the proposal was created by a governor contract.
func (p Proposal) Onchain() bool {
	return p.BlockCreatedAt != nil
}

type Topic struct {
	ID          string
	ExternalID  string
	DiscourseID string
	Title       string
	CreatedAt   time.Time
}

type Post struct {
	ID          string
	TopicID     string
	DiscourseID string
	PostNumber  int
	Body        string
	Username    string
	AvatarURL   string
	CreatedAt   time.Time
}

// Revision is one edit of a post. Version 2 is the first edit; its Before
// fields hold the post as originally written. Title fields are empty when
// the edit left the title alone.
type Revision struct {
	PostID      string
	Version     int
	BodyBefore  string
	BodyAfter   string
	TitleBefore string
	TitleAfter  string
	CreatedAt   time.Time
}

type Vote struct {
	ProposalID  string
	Voter       string
	VoterName   string
	VotingPower float64
	Choice      json.RawMessage
	Reason      string
	CreatedAt   time.Time
}
