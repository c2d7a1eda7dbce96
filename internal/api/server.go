// Package api exposes the HTTP surface: research, discovery, outreach,
// metrics/learning, realtime (websocket + webhooks), chi-routed with the
// success/error envelope on every response.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jrfdy6/aiclone-sub001/internal/activity"
	"github.com/jrfdy6/aiclone-sub001/internal/config"
	"github.com/jrfdy6/aiclone-sub001/internal/content"
	"github.com/jrfdy6/aiclone-sub001/internal/discovery"
	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/intelligence"
	"github.com/jrfdy6/aiclone-sub001/internal/outreach"
	"github.com/jrfdy6/aiclone-sub001/internal/store"
)

// ResearchService is the research pipeline surface the API calls into.
type ResearchService interface {
	CompleteWorkflow(ctx context.Context, userID, topic string, pillar domain.Pillar) (*domain.Insight, bool, error)
	RunBatch(ctx context.Context, userID string, topics []string, pillar domain.Pillar) ([]domain.Insight, error)
}

// IntelligenceService ranks seed topics into briefs.
type IntelligenceService interface {
	Briefs(ctx context.Context, seeds []string, pillar domain.Pillar) ([]intelligence.TopicBrief, error)
}

// DiscoveryService runs prospect discovery.
type DiscoveryService interface {
	Discover(ctx context.Context, userID string, categories []string, location string, maxResults int) (*discovery.Summary, error)
}

// OutreachService covers segmentation, prioritization, sequences, cadence
// and engagement tracking.
type OutreachService interface {
	SegmentProspects(ctx context.Context, userID string) (map[domain.Segment][]domain.DiscoveredProspect, error)
	PrioritizeProspects(ctx context.Context, userID string) ([]domain.DiscoveredProspect, error)
	BuildSequence(ctx context.Context, userID, prospectID string, seqType domain.SequenceType) (*domain.OutreachSequence, error)
	PlanWeek(ctx context.Context, userID string, weekStart time.Time, targets outreach.CadenceTargets) (*domain.WeeklyCadence, error)
	TrackEngagement(ctx context.Context, userID string, req outreach.TrackRequest) (*domain.ProspectMetric, error)
}

// LearningService ingests metrics and maintains patterns and reports.
type LearningService interface {
	IngestContentMetric(ctx context.Context, m *domain.ContentMetric) (*domain.ContentMetric, error)
	UpdatePatterns(ctx context.Context, userID string, only domain.PatternType) error
	BuildWeeklyReport(ctx context.Context, userID string, weekStart time.Time) (*domain.WeeklyReport, error)
}

// ContentService creates drafts with research linkage.
type ContentService interface {
	CreateDraft(ctx context.Context, userID string, req content.DraftRequest) (*domain.ContentDraft, error)
}

// SchedulerService stores and replays topic plans.
type SchedulerService interface {
	ScheduleTopics(ctx context.Context, userID string, topics []string, freq domain.ScheduleFrequency, pillar domain.Pillar) (*domain.ScheduledTopicPlan, error)
	RunScheduled(ctx context.Context, userID string, freq domain.ScheduleFrequency) (int, error)
}

// Services bundles everything the handlers need. Nil fields disable the
// corresponding routes with a config error rather than a panic.
type Services struct {
	Research     ResearchService
	Intelligence IntelligenceService
	Discovery    DiscoveryService
	Outreach     OutreachService
	Learning     LearningService
	Content      ContentService
	Scheduler    SchedulerService
	Gateway      *store.Gateway
	Hub          *activity.Hub
}

// Handlers owns the route implementations.
type Handlers struct {
	svc Services
}

// NewHandlers builds the handler set.
func NewHandlers(svc Services) *Handlers {
	return &Handlers{svc: svc}
}

// Server is the HTTP server wrapper.
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer wires routes and middleware. authMW is a pluggable middleware
// slot for the /api subtree; nil means pass-through.
func NewServer(cfg config.ServerConfig, svc Services, authMW func(http.Handler) http.Handler) *Server {
	h := NewHandlers(svc)
	return &Server{handler: SetupRoutes(h, cfg, authMW)}
}

// Handler returns the root handler, mostly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       2 * time.Minute,
		ReadHeaderTimeout: 15 * time.Second,
		// Discovery workflows run up to their 120s deadline; leave the
		// writer room to flush the envelope after that.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// SetupRoutes builds the chi router.
func SetupRoutes(h *Handlers, cfg config.ServerConfig, authMW func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		if authMW != nil {
			r.Use(authMW)
		}

		// The websocket upgrade cannot go through the timeout wrapper.
		r.Get("/ws", h.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(3 * time.Minute))

			r.Route("/research/enhanced", func(r chi.Router) {
				r.Post("/complete-workflow", h.CompleteWorkflow)
				r.Post("/schedule-topics", h.ScheduleTopics)
				r.Post("/run-scheduled", h.RunScheduled)
				r.Post("/auto-discover", h.AutoDiscover)
			})

			r.Route("/prospects", func(r chi.Router) {
				r.Post("/discover", h.DiscoverProspects)
				r.Post("/approve", h.ApproveProspects)
				r.Post("/score", h.ScoreProspects)
			})

			r.Route("/outreach", func(r chi.Router) {
				r.Post("/segment", h.SegmentProspects)
				r.Post("/prioritize", h.PrioritizeProspects)
				r.Post("/sequence/generate", h.GenerateSequence)
				r.Post("/cadence/weekly", h.WeeklyCadence)
				r.Post("/track-engagement", h.TrackEngagement)
				r.Post("/metrics", h.OutreachMetrics)
			})

			r.Route("/metrics/enhanced", func(r chi.Router) {
				r.Post("/content/update", h.UpdateContentMetric)
				r.Post("/prospects/update", h.UpdateProspectMetric)
				r.Post("/learning/update-patterns", h.UpdatePatterns)
				r.Get("/learning/patterns", h.ListPatterns)
				r.Post("/weekly-report", h.WeeklyReport)
			})

			r.Post("/content/drafts", h.CreateDraft)

			r.Get("/activities", h.ListActivities)
			r.Post("/activities/{activity_id}/read", h.MarkActivityRead)

			r.Route("/webhooks", func(r chi.Router) {
				r.Post("/", h.CreateWebhook)
				r.Get("/", h.ListWebhooks)
				r.Put("/{webhook_id}", h.UpdateWebhook)
				r.Delete("/{webhook_id}", h.DeleteWebhook)
			})
		})
	})

	return r
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	respondOK(w, map[string]interface{}{"status": "ok", "time": time.Now().UTC()})
}
