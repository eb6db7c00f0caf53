package devserver

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/nhle/ideaboard/internal/model"
)

var samples = []struct {
	typ      model.NotificationType
	category string
	title    string
	message  string
}{
	{model.TypeInfo, "ideas", "New idea posted", "Someone shared a new idea on the board."},
	{model.TypeInfo, "comments", "New comment on your idea", "A teammate replied to your idea."},
	{model.TypeSuccess, "ideas", "Idea accepted", "Your idea moved to the roadmap."},
	{model.TypeSuccess, "votes", "Vote milestone reached", "Your idea passed 10 votes."},
	{model.TypeWarning, "moderation", "Idea flagged for review", "A moderator will look at the flagged idea."},
	{model.TypeWarning, "account", "Session expiring soon", "Sign in again within the hour to keep your session."},
	{model.TypeError, "integrations", "Webhook delivery failed", "The last webhook call returned an error."},
	{model.TypeSystem, "maintenance", "Scheduled maintenance", "The board is read-only during maintenance tonight."},
}

// Generator produces sample notifications from a deterministic source.
type Generator struct {
	rng *rand.Rand
	n   int
}

// NewGenerator creates a Generator; equal seeds yield equal sequences.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed>>1|1))}
}

// Next returns a sample notification created at at.
func (g *Generator) Next(at time.Time) model.Notification {
	g.n++
	sample := samples[g.rng.IntN(len(samples))]
	return model.Notification{
		ID:        fmt.Sprintf("sample-%04d", g.n),
		Title:     sample.title,
		Message:   sample.message,
		Type:      sample.typ,
		Category:  sample.category,
		Priority:  model.Priorities[g.rng.IntN(len(model.Priorities))],
		CreatedAt: at.UTC(),
	}
}

// Seed creates n sample notifications spread over the day before now.
func (s *Server) Seed(g *Generator, n int) error {
	now := s.now()
	for i := n; i > 0; i-- {
		at := now.Add(-time.Duration(i) * 24 * time.Hour / time.Duration(n+1))
		if _, err := s.Create(g.Next(at)); err != nil {
			return fmt.Errorf("seeding notification %d: %w", n-i+1, err)
		}
	}
	return nil
}

// Emit creates a sample notification every interval until ctx is done.
func (s *Server) Emit(ctx context.Context, g *Generator, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Create(g.Next(s.now()))
			if err != nil {
				s.log.WithError(err).Warn("emitting sample notification")
				continue
			}
			s.log.WithField("id", n.ID).Debug("sample notification emitted")
		}
	}
}
