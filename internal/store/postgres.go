package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound reports that a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) GetGroup(ctx context.Context, id string) (Group, error) {
	var (
		group Group
		items []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id::text, name, COALESCE(items, '[]'::jsonb), created_at
		FROM proposal_group
		WHERE id::text = $1
	`, id).Scan(&group.ID, &group.Name, &items, &group.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Group{}, fmt.Errorf("get group: %w", err)
	}
	group.Items, err = parseGroupItems(items)
	if err != nil {
		return Group{}, fmt.Errorf("decode group %s items: %w", id, err)
	}
	return group, nil
}

type groupItemRow struct {
	Type           string `json:"type"`
	ExternalID     string `json:"externalId"`
	GovernorID     string `json:"governorId"`
	DaoDiscourseID string `json:"daoDiscourseId"`
}

// parseGroupItems decodes the items column. Unknown item types are dropped.
func parseGroupItems(raw []byte) ([]GroupItem, error) {
	var rows []groupItemRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	items := make([]GroupItem, 0, len(rows))
	for _, row := range rows {
		switch ItemKind(row.Type) {
		case ItemProposal:
			items = append(items, GroupItem{Kind: ItemProposal, ExternalID: row.ExternalID, ScopeID: row.GovernorID})
		case ItemTopic:
			items = append(items, GroupItem{Kind: ItemTopic, ExternalID: row.ExternalID, ScopeID: row.DaoDiscourseID})
		}
	}
	return items, nil
}

func (s *PostgresStore) GetProposal(ctx context.Context, externalID, governorID string) (Proposal, error) {
	var (
		p          Proposal
		choices    []byte
		blockStart sql.NullInt64
		startAt    sql.NullTime
		endAt      sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id::text, p.external_id, p.governor_id::text, p.name, COALESCE(p.body, ''),
		       p.author, COALESCE(NULLIF(v.ens, ''), p.author), COALESCE(v.avatar, ''),
		       COALESCE(p.url, ''), COALESCE(p.metadata->>'voteType', ''), COALESCE(p.choices, '[]'::jsonb),
		       p.created_at, p.start_at, p.end_at, p.block_created_at
		FROM proposal p
		LEFT JOIN voter v ON v.address = p.author
		WHERE p.external_id = $1 AND p.governor_id::text = $2
	`, externalID, governorID).Scan(
		&p.ID, &p.ExternalID, &p.GovernorID, &p.Title, &p.Body,
		&p.Author, &p.AuthorName, &p.AuthorAvatar,
		&p.URL, &p.VoteType, &choices,
		&p.CreatedAt, &startAt, &endAt, &blockStart,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Proposal{}, fmt.Errorf("proposal %s: %w", externalID, ErrNotFound)
	}
	if err != nil {
		return Proposal{}, fmt.Errorf("get proposal: %w", err)
	}
	if err := json.Unmarshal(choices, &p.Choices); err != nil {
		return Proposal{}, fmt.Errorf("decode proposal %s choices: %w", externalID, err)
	}
	p.StartAt = startAt.Time
	p.EndAt = endAt.Time
	if blockStart.Valid {
		block := blockStart.Int64
		p.BlockCreatedAt = &block
	}
	return p, nil
}

func (s *PostgresStore) GetTopic(ctx context.Context, externalID, discourseID string) (Topic, error) {
	var t Topic
	err := s.db.QueryRowContext(ctx, `
		SELECT id::text, external_id::text, dao_discourse_id::text, title, created_at
		FROM discourse_topic
		WHERE external_id::text = $1 AND dao_discourse_id::text = $2
	`, externalID, discourseID).Scan(&t.ID, &t.ExternalID, &t.DiscourseID, &t.Title, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Topic{}, fmt.Errorf("topic %s: %w", externalID, ErrNotFound)
	}
	if err != nil {
		return Topic{}, fmt.Errorf("get topic: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) GetFirstPost(ctx context.Context, topic Topic) (Post, error) {
	var (
		p        Post
		template string
		baseURL  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id::text, p.topic_id::text, p.dao_discourse_id::text, p.post_number, COALESCE(p.cooked, ''),
		       p.username, COALESCE(u.avatar_template, ''), COALESCE(d.discourse_base_url, ''), p.created_at
		FROM discourse_post p
		LEFT JOIN discourse_user u ON u.external_id = p.user_id AND u.dao_discourse_id = p.dao_discourse_id
		LEFT JOIN dao_discourse d ON d.id = p.dao_discourse_id
		WHERE p.topic_id::text = $1 AND p.dao_discourse_id::text = $2 AND p.post_number = 1
	`, topic.ExternalID, topic.DiscourseID).Scan(
		&p.ID, &p.TopicID, &p.DiscourseID, &p.PostNumber, &p.Body,
		&p.Username, &template, &baseURL, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, fmt.Errorf("first post of topic %s: %w", topic.ExternalID, ErrNotFound)
	}
	if err != nil {
		return Post{}, fmt.Errorf("get first post: %w", err)
	}
	p.AvatarURL = avatarURL(baseURL, template)
	return p, nil
}

// avatarURL resolves a forum avatar template such as
// "/user_avatar/forum.example/alice/{size}/1.png".
func avatarURL(baseURL, template string) string {
	if template == "" {
		return ""
	}
	url := strings.ReplaceAll(template, "{size}", "120")
	if strings.HasPrefix(url, "//") {
		return "https:" + url
	}
	if strings.HasPrefix(url, "/") {
		return strings.TrimRight(baseURL, "/") + url
	}
	return url
}

func (s *PostgresStore) ListRevisions(ctx context.Context, post Post) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, COALESCE(cooked_body_before, ''), COALESCE(cooked_body_after, ''),
		       COALESCE(cooked_title_before, ''), COALESCE(cooked_title_after, ''), created_at
		FROM discourse_post_revision
		WHERE discourse_post_id::text = $1
		ORDER BY version ASC
	`, post.ID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	var revisions []Revision
	for rows.Next() {
		r := Revision{PostID: post.ID}
		if err := rows.Scan(&r.Version, &r.BodyBefore, &r.BodyAfter, &r.TitleBefore, &r.TitleAfter, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		revisions = append(revisions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return revisions, nil
}

// ListReplyTimes returns the creation time of every reply in a topic.
func (s *PostgresStore) ListReplyTimes(ctx context.Context, topic Topic) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT created_at
		FROM discourse_post
		WHERE topic_id::text = $1 AND dao_discourse_id::text = $2 AND post_number > 1
		ORDER BY created_at ASC
	`, topic.ExternalID, topic.DiscourseID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		times = append(times, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replies: %w", err)
	}
	return times, nil
}

func (s *PostgresStore) ListVotes(ctx context.Context, proposal Proposal) ([]Vote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.voter_address, COALESCE(NULLIF(r.ens, ''), v.voter_address), v.voting_power,
		       COALESCE(v.choice, 'null'::jsonb), COALESCE(v.reason, ''), v.created_at
		FROM vote v
		LEFT JOIN voter r ON r.address = v.voter_address
		WHERE v.proposal_id::text = $1
		ORDER BY v.created_at ASC
	`, proposal.ID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var votes []Vote
	for rows.Next() {
		v := Vote{ProposalID: proposal.ID}
		var choice []byte
		if err := rows.Scan(&v.Voter, &v.VoterName, &v.VotingPower, &choice, &v.Reason, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.Choice = json.RawMessage(choice)
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return votes, nil
}
