// Package versions rebuilds the ordered edit history of a proposal group
// from its proposals, forum topics and post revisions.
package versions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"proposalsapp/api/internal/metrics"
	"proposalsapp/api/internal/store"
)

type Kind string

const (
	KindTopic    Kind = "topic"
	KindOnchain  Kind = "onchain"
	KindOffchain Kind = "offchain"
)

type Version struct {
	Index            int       `json:"index"`
	Kind             Kind      `json:"kind"`
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	AuthorName       string    `json:"authorName"`
	AuthorPictureURL string    `json:"authorPictureUrl"`
	CreatedAt        time.Time `json:"createdAt"`
}

type Timeline struct {
	Versions []Version `json:"versions"`
	Total    int       `json:"totalVersions"`
}

// Store is the read-only view of the records a timeline is built from.
type Store interface {
	GetProposal(ctx context.Context, externalID, governorID string) (store.Proposal, error)
	GetTopic(ctx context.Context, externalID, discourseID string) (store.Topic, error)
	GetFirstPost(ctx context.Context, topic store.Topic) (store.Post, error)
	ListRevisions(ctx context.Context, post store.Post) ([]store.Revision, error)
}

const DefaultConcurrency = 8

type Builder struct {
	store       Store
	log         zerolog.Logger
	metrics     *metrics.Metrics
	concurrency int
}

type Option func(*Builder)

func WithLogger(log zerolog.Logger) Option {
	return func(b *Builder) { b.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// WithConcurrency bounds the number of group items read at once.
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func NewBuilder(s Store, opts ...Option) *Builder {
	b := &Builder{store: s, log: zerolog.Nop(), concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build reads every item of the group and returns its versions sorted by
// creation time. Items that cannot be read are logged and skipped; only a
// cancelled context fails the build.
func (b *Builder) Build(ctx context.Context, group store.Group) (Timeline, error) {
	slots := make([][]Version, len(group.Items))

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, item := range group.Items {
		g.Go(func() error {
			vs, err := b.buildItem(ctx, item)
			if err != nil {
				b.skip(group.ID, item, err)
				return nil
			}
			slots[i] = vs
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Timeline{}, fmt.Errorf("build versions for group %s: %w", group.ID, err)
	}

	var all []Version
	for _, vs := range slots {
		all = append(all, vs...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	for i := range all {
		all[i].Index = i
	}
	return Timeline{Versions: all, Total: len(all)}, nil
}

var errUnknownItem = errors.New("unknown group item kind")

func (b *Builder) buildItem(ctx context.Context, item store.GroupItem) ([]Version, error) {
	switch item.Kind {
	case store.ItemProposal:
		p, err := b.store.GetProposal(ctx, item.ExternalID, item.ScopeID)
		if err != nil {
			return nil, err
		}
		return []Version{ProposalVersion(p)}, nil
	case store.ItemTopic:
		topic, err := b.store.GetTopic(ctx, item.ExternalID, item.ScopeID)
		if err != nil {
			return nil, err
		}
		post, err := b.store.GetFirstPost(ctx, topic)
		if err != nil {
			return nil, err
		}
		revisions, err := b.store.ListRevisions(ctx, post)
		if err != nil {
			return nil, err
		}
		return TopicVersions(topic, post, revisions), nil
	}
	return nil, fmt.Errorf("%w: %q", errUnknownItem, item.Kind)
}

func (b *Builder) skip(groupID string, item store.GroupItem, err error) {
	if errors.Is(err, store.ErrNotFound) {
		b.metrics.LookupMissing(string(item.Kind))
		b.log.Warn().
			Str("group_id", groupID).
			Str("kind", string(item.Kind)).
			Str("external_id", item.ExternalID).
			Str("scope_id", item.ScopeID).
			Err(err).
			Msg("lookup missing, skipping group item")
		return
	}
	b.metrics.LookupFailed(string(item.Kind))
	b.log.Error().
		Str("group_id", groupID).
		Str("kind", string(item.Kind)).
		Str("external_id", item.ExternalID).
		Err(err).
		Msg("failed to read group item, skipping")
}

func ProposalVersion(p store.Proposal) Version {
	kind := KindOffchain
	if p.Onchain() {
		kind = KindOnchain
	}
	return Version{
		Kind:             kind,
		Title:            p.Title,
		Content:          p.Body,
		AuthorName:       p.AuthorName,
		AuthorPictureURL: p.AuthorAvatar,
		CreatedAt:        p.CreatedAt,
	}
}

// TopicVersions expands a topic's first post and its revision chain. With
// no revisions the post itself is the only version. Otherwise the first
// edit also yields the post as originally written.
func TopicVersions(topic store.Topic, post store.Post, revisions []store.Revision) []Version {
	base := Version{Kind: KindTopic, AuthorName: post.Username, AuthorPictureURL: post.AvatarURL}
	if len(revisions) == 0 {
		v := base
		v.Title = topic.Title
		v.Content = post.Body
		v.CreatedAt = post.CreatedAt
		return []Version{v}
	}

	title := originalTitle(topic, revisions)
	out := make([]Version, 0, len(revisions)+1)
	for _, r := range revisions {
		if r.Version == 2 {
			v := base
			v.Title = title
			v.Content = r.BodyBefore
			v.CreatedAt = post.CreatedAt
			out = append(out, v)
		}
		if r.TitleAfter != "" {
			title = r.TitleAfter
		}
		v := base
		v.Title = title
		v.Content = r.BodyAfter
		v.CreatedAt = r.CreatedAt
		out = append(out, v)
	}
	return out
}

// originalTitle is the title before the first title edit, or the current
// topic title when no edit touched it.
func originalTitle(topic store.Topic, revisions []store.Revision) string {
	for _, r := range revisions {
		if r.TitleBefore != "" {
			return r.TitleBefore
		}
	}
	return topic.Title
}
