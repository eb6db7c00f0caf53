// Package devserver is an in-memory implementation of the notification
// service used for local development and integration tests. It assigns
// monotonically increasing source versions, keeps server-side tombstones so
// incremental listings can report deletions, and pushes every change over
// websocket and, optionally, a Redis channel.
package devserver

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nhle/ideaboard/internal/logging"
	"github.com/nhle/ideaboard/internal/model"
	"github.com/nhle/ideaboard/internal/realtime"
)

// Operation names accepted by FailNext.
const (
	OpList    = "list"
	OpGet     = "get"
	OpRead    = "read"
	OpReadAll = "read_all"
	OpDelete  = "delete"
	OpClear   = "clear"
	OpStream  = "stream"
)

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

// Config configures a Server.
type Config struct {
	// Secret signs and verifies HS256 bearer tokens. Empty disables auth.
	Secret []byte

	// Redis, when set, receives every push payload on RedisChannel.
	Redis        *redis.Client
	RedisChannel string

	// Clock defaults to time.Now.
	Clock func() time.Time

	Logger logrus.FieldLogger
}

// Server holds the notification state of a single user.
type Server struct {
	secret       []byte
	redis        *redis.Client
	redisChannel string
	now          func() time.Time
	log          logrus.FieldLogger
	hub          *hub
	engine       *gin.Engine

	mu       sync.Mutex
	version  int64
	records  map[string]model.Notification
	deleted  map[string]int64
	failures map[string]int
	muted    bool
}

// New creates a Server and its routes.
func New(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	log := cfg.Logger.WithField("component", "devserver")

	s := &Server{
		secret:       cfg.Secret,
		redis:        cfg.Redis,
		redisChannel: cfg.RedisChannel,
		now:          cfg.Clock,
		log:          log,
		hub:          newHub(log),
		records:      make(map[string]model.Notification),
		deleted:      make(map[string]int64),
		failures:     make(map[string]int),
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler serving the REST and push endpoints.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/", s.authRequired())
	api.GET("/notifications", s.fault(OpList), s.handleList)
	api.POST("/notifications", s.handleCreate)
	api.DELETE("/notifications", s.fault(OpClear), s.handleClear)
	api.POST("/notifications/read-all", s.fault(OpReadAll), s.handleReadAll)
	api.GET("/notifications/:id", s.fault(OpGet), s.handleGet)
	api.POST("/notifications/:id/read", s.fault(OpRead), s.handleRead)
	api.DELETE("/notifications/:id", s.fault(OpDelete), s.handleDelete)
	api.GET("/ws", s.fault(OpStream), func(c *gin.Context) {
		s.hub.serve(c.Writer, c.Request)
	})
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start),
			"request_id": c.GetHeader("X-Request-ID"),
		}).Debug("request")
	}
}

// FailNext makes the next n requests for op fail with 503.
func (s *Server) FailNext(op string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = n
}

func (s *Server) fault(op string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		n := s.failures[op]
		if n > 0 {
			s.failures[op] = n - 1
		}
		s.mu.Unlock()
		if n > 0 {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "injected failure: " + op})
			return
		}
		c.Next()
	}
}

// SetMuted stops (or resumes) pushing changes. Muted changes are still
// visible through the REST listing.
func (s *Server) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

// DropConnections disconnects every push client.
func (s *Server) DropConnections() {
	s.hub.closeAll()
}

// Clients returns the number of connected push clients.
func (s *Server) Clients() int {
	return s.hub.count()
}

// Version returns the latest assigned source version.
func (s *Server) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Records returns the live records, newest first.
func (s *Server) Records() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, 0, len(s.records))
	for _, n := range s.records {
		out = append(out, n.Clone())
	}
	slices.SortFunc(out, func(a, b model.Notification) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Create stores n as a new record, or replaces the record with the same id,
// and pushes the change. Missing id, createdAt and priority are filled in.
func (s *Server) Create(n model.Notification) (model.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	n.SourceVersion = 0
	if err := n.Validate(); err != nil {
		return model.Notification{}, err
	}

	s.mu.Lock()
	_, exists := s.records[n.ID]
	n.SourceVersion = s.nextVersion()
	n = n.Normalize()
	s.records[n.ID] = n
	delete(s.deleted, n.ID)
	kind := model.EventCreated
	if exists {
		kind = model.EventUpdated
	}
	ev := model.Event{Kind: kind, Record: ptr(n.Clone()), ID: n.ID, SourceVersion: n.SourceVersion}
	s.mu.Unlock()

	s.push(ev)
	return n, nil
}

// MarkRead marks id read as if another device had done it.
func (s *Server) MarkRead(id string) (model.Notification, bool) {
	s.mu.Lock()
	n, ok, ev := s.markReadLocked(id)
	s.mu.Unlock()
	if ev != nil {
		s.push(*ev)
	}
	return n, ok
}

// Delete removes id as if another device had done it.
func (s *Server) Delete(id string) bool {
	s.mu.Lock()
	ev := s.deleteLocked(id)
	s.mu.Unlock()
	if ev == nil {
		return false
	}
	s.push(*ev)
	return true
}

func (s *Server) nextVersion() int64 {
	s.version++
	return s.version
}

func (s *Server) markReadLocked(id string) (model.Notification, bool, *model.Event) {
	n, ok := s.records[id]
	if !ok {
		return model.Notification{}, false, nil
	}
	if n.Read {
		return n.Clone(), true, nil
	}
	at := s.now().UTC()
	n.Read = true
	n.ReadAt = &at
	n.SourceVersion = s.nextVersion()
	n = n.Normalize()
	s.records[id] = n
	return n.Clone(), true, &model.Event{Kind: model.EventRead, ID: id, SourceVersion: n.SourceVersion, At: n.ReadAt}
}

func (s *Server) deleteLocked(id string) *model.Event {
	if _, ok := s.records[id]; !ok {
		return nil
	}
	v := s.nextVersion()
	delete(s.records, id)
	s.deleted[id] = v
	return &model.Event{Kind: model.EventDeleted, ID: id, SourceVersion: v}
}

// push sends ev to every push client and the Redis channel.
func (s *Server) push(ev model.Event) {
	s.mu.Lock()
	muted := s.muted
	s.mu.Unlock()
	if muted {
		return
	}

	payload, err := realtime.Encode(ev)
	if err != nil {
		s.log.WithError(err).Error("encoding push message")
		return
	}
	s.hub.broadcast(payload)

	if s.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
		s.log.WithError(err).Warn("publishing push message to redis")
	}
}

// page lists changes after cursor in version order. Deletions are only
// reported to incremental listings (cursor > 0).
func (s *Server) page(cursor int64, limit int) model.Page {
	s.mu.Lock()
	defer s.mu.Unlock()

	type change struct {
		version int64
		record  *model.Notification
		id      string
	}
	var changes []change
	for _, n := range s.records {
		if n.SourceVersion > cursor {
			changes = append(changes, change{version: n.SourceVersion, record: ptr(n.Clone())})
		}
	}
	if cursor > 0 {
		for id, v := range s.deleted {
			if v > cursor {
				changes = append(changes, change{version: v, id: id})
			}
		}
	}
	slices.SortFunc(changes, func(a, b change) int { return cmp.Compare(a.version, b.version) })

	page := model.Page{Items: []model.Notification{}, Watermark: s.version}
	if len(changes) > limit {
		changes = changes[:limit]
		page.HasMore = true
	}
	for _, ch := range changes {
		if ch.record != nil {
			page.Items = append(page.Items, *ch.record)
		} else {
			page.Deleted = append(page.Deleted, model.Deletion{ID: ch.id, SourceVersion: ch.version})
		}
	}

	next := s.version
	if page.HasMore {
		next = changes[len(changes)-1].version
	}
	page.NextCursor = strconv.FormatInt(next, 10)
	return page
}

func (s *Server) handleList(c *gin.Context) {
	cursor, err := strconv.ParseInt(c.DefaultQuery("cursor", "0"), 10, 64)
	if err != nil || cursor < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	limit = min(limit, maxPageSize)

	c.JSON(http.StatusOK, s.page(cursor, limit))
}

func (s *Server) handleGet(c *gin.Context) {
	s.mu.Lock()
	n, ok := s.records[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	c.JSON(http.StatusOK, n)
}

func (s *Server) handleCreate(c *gin.Context) {
	var n model.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := s.Create(n)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, model.ErrInvalidNotification) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleRead(c *gin.Context) {
	n, ok := s.MarkRead(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	c.JSON(http.StatusOK, n)
}

type readAllRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleReadAll(c *gin.Context) {
	var req readAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	if len(req.IDs) == 0 {
		for id, n := range s.records {
			if !n.Read {
				req.IDs = append(req.IDs, id)
			}
		}
		slices.Sort(req.IDs)
	}
	results := make([]model.BatchResult, 0, len(req.IDs))
	var events []model.Event
	for _, id := range req.IDs {
		n, ok, ev := s.markReadLocked(id)
		if !ok {
			results = append(results, model.BatchResult{ID: id, Error: "notification not found"})
			continue
		}
		results = append(results, model.BatchResult{ID: id, OK: true, Record: ptr(n)})
		if ev != nil {
			events = append(events, *ev)
		}
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.push(ev)
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleDelete(c *gin.Context) {
	if !s.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClear(c *gin.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	events := make([]model.Event, 0, len(ids))
	for _, id := range ids {
		if ev := s.deleteLocked(id); ev != nil {
			events = append(events, *ev)
		}
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.push(ev)
	}
	c.Status(http.StatusNoContent)
}

// ListenAndServe serves the handler on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.hub.closeAll()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
