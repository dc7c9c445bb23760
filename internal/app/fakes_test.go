package app

import (
	"context"
	"time"

	"proposalsapp/api/internal/config"
	"proposalsapp/api/internal/store"
)

type fakeStore struct {
	groups    map[string]store.Group
	proposals map[string]store.Proposal
	topics    map[string]store.Topic
	posts     map[string]store.Post
	revisions map[string][]store.Revision
	replies   map[string][]time.Time
	votes     map[string][]store.Vote
	pingFn    func(context.Context) error
	getGroups int
}

func (f *fakeStore) GetGroup(_ context.Context, id string) (store.Group, error) {
	f.getGroups++
	g, ok := f.groups[id]
	if !ok {
		return store.Group{}, store.ErrNotFound
	}
	return g, nil
}

func (f *fakeStore) GetProposal(_ context.Context, externalID, _ string) (store.Proposal, error) {
	p, ok := f.proposals[externalID]
	if !ok {
		return store.Proposal{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) GetTopic(_ context.Context, externalID, _ string) (store.Topic, error) {
	t, ok := f.topics[externalID]
	if !ok {
		return store.Topic{}, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) GetFirstPost(_ context.Context, topic store.Topic) (store.Post, error) {
	p, ok := f.posts[topic.ID]
	if !ok {
		return store.Post{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) ListRevisions(_ context.Context, post store.Post) ([]store.Revision, error) {
	return f.revisions[post.ID], nil
}

func (f *fakeStore) ListReplyTimes(_ context.Context, topic store.Topic) ([]time.Time, error) {
	return f.replies[topic.ID], nil
}

func (f *fakeStore) ListVotes(_ context.Context, proposal store.Proposal) ([]store.Vote, error) {
	return f.votes[proposal.ID], nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeCache struct {
	entries map[string]store.Group
	getErr  error
	puts    int
}

func (c *fakeCache) Get(_ context.Context, id string) (store.Group, bool, error) {
	if c.getErr != nil {
		return store.Group{}, false, c.getErr
	}
	g, ok := c.entries[id]
	return g, ok, nil
}

func (c *fakeCache) Put(_ context.Context, g store.Group) error {
	c.puts++
	if c.entries == nil {
		c.entries = map[string]store.Group{}
	}
	c.entries[g.ID] = g
	return nil
}

var t0 = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

// newFakeStore holds one group: a forum topic edited once ("cat" to
// "dog") and the offchain proposal that followed it.
func newFakeStore() *fakeStore {
	return &fakeStore{
		groups: map[string]store.Group{
			"g1": {ID: "g1", Name: "Pet policy", Items: []store.GroupItem{
				{Kind: store.ItemTopic, ExternalID: "t1", ScopeID: "forum"},
				{Kind: store.ItemProposal, ExternalID: "p1", ScopeID: "space"},
			}},
			"empty": {ID: "empty", Name: "Nothing yet"},
		},
		topics: map[string]store.Topic{
			"t1": {ID: "topic-1", ExternalID: "t1", Title: "Pets", CreatedAt: t0},
		},
		posts: map[string]store.Post{
			"topic-1": {ID: "post-1", Body: "The cat sat.", Username: "alice", CreatedAt: t0},
		},
		revisions: map[string][]store.Revision{
			"post-1": {{PostID: "post-1", Version: 2, BodyBefore: "The cat sat.", BodyAfter: "The dog sat.", CreatedAt: t0.Add(24 * time.Hour)}},
		},
		replies: map[string][]time.Time{
			"topic-1": {t0.Add(time.Hour), t0.Add(2 * time.Hour)},
		},
		proposals: map[string]store.Proposal{
			"p1": {ID: "prop-1", ExternalID: "p1", Title: "Pets v2", Body: "The dog sat down.", AuthorName: "bob",
				CreatedAt: t0.Add(48 * time.Hour), StartAt: t0.Add(48 * time.Hour), EndAt: t0.Add(96 * time.Hour)},
		},
	}
}

func newTestService(fs *fakeStore, opts ...Option) *Service {
	cfg := config.Config{}
	cfg.Builder.Concurrency = 2
	return New(cfg, fs, opts...)
}
