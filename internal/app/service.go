package app

import (
	"context"
	"fmt"
	"html"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"proposalsapp/api/internal/config"
	"proposalsapp/api/internal/diffrender"
	"proposalsapp/api/internal/export"
	"proposalsapp/api/internal/feed"
	"proposalsapp/api/internal/logger"
	"proposalsapp/api/internal/metrics"
	"proposalsapp/api/internal/store"
	"proposalsapp/api/internal/versions"
	"proposalsapp/api/internal/worddiff"
)

type dataStore interface {
	versions.Store
	feed.Store
	GetGroup(context.Context, string) (store.Group, error)
	Ping(context.Context) error
}

type groupCache interface {
	Get(context.Context, string) (store.Group, bool, error)
	Put(context.Context, store.Group) error
}

type Service struct {
	cfg        config.Config
	store      dataStore
	cache      groupCache
	versions   *versions.Builder
	feed       *feed.Builder
	exporter   *export.Service
	metrics    *metrics.Metrics
	log        zerolog.Logger
	classes    diffrender.Classes
	renderOpts []diffrender.Option
	now        func() time.Time
}

type Option func(*Service)

// WithCache puts a group cache in front of the store. A nil cache is ignored.
func WithCache(c groupCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func New(cfg config.Config, dataStore dataStore, opts ...Option) *Service {
	s := &Service{
		cfg:   cfg,
		store: dataStore,
		log:   zerolog.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.classes = diffrender.DefaultClasses()
	if cfg.Diff.ClassInserted != "" {
		s.classes.Inserted = cfg.Diff.ClassInserted
	}
	if cfg.Diff.ClassDeleted != "" {
		s.classes.Deleted = cfg.Diff.ClassDeleted
	}
	if cfg.Diff.ClassModified != "" {
		s.classes.Modified = cfg.Diff.ClassModified
	}
	if cfg.Diff.MaxNodes > 0 {
		s.renderOpts = append(s.renderOpts, diffrender.WithMaxNodes(cfg.Diff.MaxNodes))
	}
	if cfg.Diff.MaxDepth > 0 {
		s.renderOpts = append(s.renderOpts, diffrender.WithMaxDepth(cfg.Diff.MaxDepth))
	}

	s.versions = versions.NewBuilder(dataStore,
		versions.WithLogger(logger.Component(s.log, "versions")),
		versions.WithMetrics(s.metrics),
		versions.WithConcurrency(cfg.Builder.Concurrency),
	)
	s.feed = feed.NewBuilder(dataStore,
		feed.WithLogger(logger.Component(s.log, "feed")),
		feed.WithNotableShare(cfg.Feed.NotableVoteShare),
		feed.WithConcurrency(cfg.Builder.Concurrency),
	)
	s.exporter = export.NewService(cfg.Export.Timeout)
	return s
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Group loads a group record, through the cache when one is configured.
// Cache failures fall through to the store.
func (s *Service) Group(ctx context.Context, groupID string) (store.Group, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return store.Group{}, validationError("groupId", groupID, "group id is required")
	}

	if s.cache != nil {
		group, found, err := s.cache.Get(ctx, groupID)
		switch {
		case err != nil:
			s.metrics.CacheResult("error")
			s.log.Warn().Str("group_id", groupID).Err(err).Msg("group cache read failed")
		case found:
			s.metrics.CacheResult("hit")
			return group, nil
		default:
			s.metrics.CacheResult("miss")
		}
	}

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return store.Group{}, fmt.Errorf("get group %s: %w", groupID, err)
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, group); err != nil {
			s.log.Warn().Str("group_id", groupID).Err(err).Msg("group cache write failed")
		}
	}
	return group, nil
}

func (s *Service) timeline(ctx context.Context, groupID string) (store.Group, versions.Timeline, error) {
	group, err := s.Group(ctx, groupID)
	if err != nil {
		return store.Group{}, versions.Timeline{}, err
	}
	tl, err := s.versions.Build(ctx, group)
	if err != nil {
		return store.Group{}, versions.Timeline{}, err
	}
	s.metrics.ObserveVersions(tl.Total)
	return group, tl, nil
}

func (s *Service) Versions(ctx context.Context, groupID string) (map[string]any, error) {
	group, tl, err := s.timeline(ctx, groupID)
	if err != nil {
		return nil, err
	}
	list := tl.Versions
	if list == nil {
		list = []versions.Version{}
	}
	return map[string]any{
		"groupId":       group.ID,
		"name":          group.Name,
		"versions":      list,
		"totalVersions": tl.Total,
	}, nil
}

// resolvePair picks the two versions to compare. to defaults to the latest
// version and from to the one before it.
func resolvePair(tl versions.Timeline, fromRaw, toRaw string) (versions.Version, versions.Version, error) {
	if tl.Total == 0 {
		return versions.Version{}, versions.Version{}, domainError(http.StatusNotFound, "NO_VERSIONS", "Group has no versions", nil)
	}

	to := tl.Total - 1
	if strings.TrimSpace(toRaw) != "" {
		parsed, err := parseIndex("to", toRaw, tl.Total)
		if err != nil {
			return versions.Version{}, versions.Version{}, err
		}
		to = parsed
	}
	from := max(to-1, 0)
	if strings.TrimSpace(fromRaw) != "" {
		parsed, err := parseIndex("from", fromRaw, tl.Total)
		if err != nil {
			return versions.Version{}, versions.Version{}, err
		}
		from = parsed
	}
	return tl.Versions[from], tl.Versions[to], nil
}

func parseIndex(name, raw string, total int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 || n >= total {
		return 0, validationError(name, raw, fmt.Sprintf("%s must be a version index between 0 and %d", name, total-1))
	}
	return n, nil
}

// renderDiff renders to annotated with the changes since from. When either
// side cannot be parsed it falls back to the plain new content and reports
// diffed=false.
func (s *Service) renderDiff(groupID string, from, to versions.Version) (string, bool) {
	started := time.Now()
	out, err := diffrender.NewDocument(s.classes, s.renderOpts...).Diff(from.Content, to.Content)
	s.metrics.ObserveRender(time.Since(started), err != nil)
	if err == nil {
		return out, true
	}

	s.log.Warn().
		Str("group_id", groupID).
		Int("from", from.Index).
		Int("to", to.Index).
		Err(err).
		Msg("diff render failed, serving plain content")
	plain, err := diffrender.Render(to.Content, s.renderOpts...)
	if err != nil {
		return "<pre>" + html.EscapeString(to.Content) + "</pre>", false
	}
	return plain, false
}

func (s *Service) Diff(ctx context.Context, groupID, fromRaw, toRaw string) (map[string]any, error) {
	_, tl, err := s.timeline(ctx, groupID)
	if err != nil {
		return nil, err
	}
	from, to, err := resolvePair(tl, fromRaw, toRaw)
	if err != nil {
		return nil, err
	}

	body, diffed := s.renderDiff(groupID, from, to)
	return map[string]any{
		"from":         from,
		"to":           to,
		"title":        to.Title,
		"titleChanges": worddiff.Pair(worddiff.Diff(from.Title, to.Title)),
		"html":         body,
		"diffed":       diffed,
	}, nil
}

// Changes returns the word-level changes between the markdown sources of
// two versions.
func (s *Service) Changes(ctx context.Context, groupID, fromRaw, toRaw string) (map[string]any, error) {
	_, tl, err := s.timeline(ctx, groupID)
	if err != nil {
		return nil, err
	}
	from, to, err := resolvePair(tl, fromRaw, toRaw)
	if err != nil {
		return nil, err
	}

	result := worddiff.Compute(from.Content, to.Content)
	if result.Truncated {
		s.metrics.TokenCapExceeded()
		s.log.Debug().Str("group_id", groupID).Int("from", from.Index).Int("to", to.Index).Msg("word diff token cap exceeded")
	}
	spans := worddiff.Pair(result.Spans)
	if spans == nil {
		spans = []worddiff.Span{}
	}
	return map[string]any{
		"from":      from.Index,
		"to":        to.Index,
		"spans":     spans,
		"truncated": result.Truncated,
	}, nil
}

func (s *Service) Feed(ctx context.Context, groupID, levelRaw string) (map[string]any, error) {
	level := 0
	if strings.TrimSpace(levelRaw) != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(levelRaw))
		if err != nil || parsed < 0 {
			return nil, validationError("level", levelRaw, "level must be a non-negative integer")
		}
		level = parsed
	}

	group, err := s.Group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	raw, err := s.feed.Build(ctx, group)
	if err != nil {
		return nil, err
	}
	events := feed.Aggregate(raw, level)
	return map[string]any{
		"groupId":  group.ID,
		"level":    level,
		"rawCount": len(raw),
		"events":   events,
	}, nil
}

// StepFeed applies one display measurement to a feed state.
func (s *Service) StepFeed(state feed.State, m feed.Measurement) (map[string]any, error) {
	if state.Level < 0 || state.Level > feed.MaxLevel {
		return nil, validationError("state.level", strconv.Itoa(state.Level), fmt.Sprintf("level must be between 0 and %d", feed.MaxLevel))
	}
	next := feed.Step(state, m)
	return map[string]any{
		"state":   next,
		"changed": next != state,
	}, nil
}

func (s *Service) Export(ctx context.Context, groupID, fromRaw, toRaw, formatRaw string) (*export.Result, error) {
	format, err := export.ParseFormat(formatRaw)
	if err != nil {
		return nil, err
	}
	group, tl, err := s.timeline(ctx, groupID)
	if err != nil {
		return nil, err
	}
	from, to, err := resolvePair(tl, fromRaw, toRaw)
	if err != nil {
		return nil, err
	}

	body, _ := s.renderDiff(groupID, from, to)
	title := to.Title
	if title == "" {
		title = group.Name
	}
	result, err := s.exporter.Export(ctx, export.Page{
		Title:       title,
		FromLabel:   versionLabel(from),
		ToLabel:     versionLabel(to),
		DiffHTML:    template.HTML(body),
		GeneratedAt: s.now().UTC(),
		Classes: export.Classes{
			Inserted: s.classes.Inserted,
			Deleted:  s.classes.Deleted,
			Modified: s.classes.Modified,
		},
	}, format)
	if err != nil {
		return nil, fmt.Errorf("export group %s: %w", groupID, err)
	}
	return result, nil
}

func versionLabel(v versions.Version) string {
	return fmt.Sprintf("Version %d (%s)", v.Index+1, v.CreatedAt.UTC().Format("Jan 2, 2006"))
}
