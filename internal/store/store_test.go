package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

// backends under test share one conformance suite.
func testBackends(t *testing.T) map[string]Store {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemory(),
		"local":  local,
	}
}

func TestCRUDRoundTrip(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			path := "users/u1/prospects/p1"

			p := domain.DiscoveredProspect{
				UserID: "u1", ProspectID: "p1", Name: "Jane Doe",
				Organization: "Acme Clinic", Category: "psychologists",
			}
			require.NoError(t, s.Put(ctx, path, &p))

			var got domain.DiscoveredProspect
			require.NoError(t, s.Get(ctx, path, &got))
			assert.Equal(t, "Jane Doe", got.Name)

			require.NoError(t, s.Delete(ctx, path))
			err := s.Get(ctx, path, &got)
			assert.True(t, errors.Is(err, ErrNotFound))

			// Deleting again is a no-op.
			assert.NoError(t, s.Delete(ctx, path))
		})
	}
}

func TestQueryFiltersAndOrdering(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			for i, status := range []string{"ready_for_content_generation", "collecting", "ready_for_content_generation"} {
				doc := map[string]interface{}{
					"insight_id": []string{"i1", "i2", "i3"}[i],
					"status":     status,
					"pillar":     "referral",
					"audiences":  []string{"school_counselors"},
					"created_at": base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
					"score":      float64(i),
				}
				require.NoError(t, s.Put(ctx, "users/u1/research_insights/"+doc["insight_id"].(string), doc))
			}

			raws, err := s.QueryDocs(ctx, "users/u1/research_insights", Query{
				Filters: []Filter{Eq("status", "ready_for_content_generation")},
				OrderBy: "created_at",
				Desc:    true,
			})
			require.NoError(t, err)
			require.Len(t, raws, 2)

			var first map[string]interface{}
			require.NoError(t, json.Unmarshal(raws[0], &first))
			assert.Equal(t, "i3", first["insight_id"], "newest first")

			// Array membership via contains.
			raws, err = s.QueryDocs(ctx, "users/u1/research_insights", Query{
				Filters: []Filter{{Field: "audiences", Op: OpContains, Value: "school_counselors"}},
			})
			require.NoError(t, err)
			assert.Len(t, raws, 3)

			// Numeric ordering ascending with limit.
			raws, err = s.QueryDocs(ctx, "users/u1/research_insights", Query{OrderBy: "score", Limit: 2})
			require.NoError(t, err)
			require.Len(t, raws, 2)
			require.NoError(t, json.Unmarshal(raws[0], &first))
			assert.Equal(t, "i1", first["insight_id"])
		})
	}
}

func TestQueryScopesToUser(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, "users/u1/prospects/p1", map[string]interface{}{"prospect_id": "p1"}))
			require.NoError(t, s.Put(ctx, "users/u2/prospects/p2", map[string]interface{}{"prospect_id": "p2"}))

			raws, err := s.QueryDocs(ctx, "users/u1/prospects", Query{})
			require.NoError(t, err)
			assert.Len(t, raws, 1, "queries never cross tenants")
		})
	}
}

func TestUpdateCreatesAndMutates(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			path := "users/u1/learning_patterns/content_pillar:referral"

			err := s.Update(ctx, path, func(raw json.RawMessage) (interface{}, error) {
				require.Nil(t, raw, "first update sees no document")
				return map[string]interface{}{"sample_size": 1}, nil
			})
			require.NoError(t, err)

			err = s.Update(ctx, path, func(raw json.RawMessage) (interface{}, error) {
				var doc map[string]interface{}
				require.NoError(t, json.Unmarshal(raw, &doc))
				doc["sample_size"] = doc["sample_size"].(float64) + 1
				return doc, nil
			})
			require.NoError(t, err)

			var doc map[string]interface{}
			require.NoError(t, s.Get(ctx, path, &doc))
			assert.Equal(t, float64(2), doc["sample_size"])
		})
	}
}

func TestGatewayInsightCache(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(NewMemory())

	in := &domain.Insight{
		UserID:    "u1",
		InsightID: "i1",
		Topic:     "AI in K-12 Education",
		Pillar:    domain.PillarThoughtLeadership,
		Audiences: domain.AudiencesFor(domain.PillarThoughtLeadership),
		Status:    domain.InsightReady,
		DedupHash: domain.DedupHash("AI in K-12 Education", domain.PillarThoughtLeadership),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, g.SaveInsight(ctx, in))

	hit, err := g.FindInsightByHash(ctx, "u1", in.DedupHash, domain.InsightReady)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "i1", hit.InsightID)

	miss, err := g.FindInsightByHash(ctx, "u1", "nope", domain.InsightReady)
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestGatewayStatusGuard(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(NewMemory())

	in := &domain.Insight{UserID: "u1", InsightID: "i1", Status: domain.InsightCollecting}
	require.NoError(t, g.SaveInsight(ctx, in))

	require.NoError(t, g.TransitionInsightStatus(ctx, "u1", "i1", domain.InsightReady))
	// A late writer trying to revert is silently ignored.
	require.NoError(t, g.TransitionInsightStatus(ctx, "u1", "i1", domain.InsightCollecting))

	got, err := g.GetInsight(ctx, "u1", "i1")
	require.NoError(t, err)
	assert.Equal(t, domain.InsightReady, got.Status)
}

func TestGatewayProspectMetricUpsert(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(NewMemory())

	m, err := g.UpsertProspectMetric(ctx, "u1", "p1", "s1", func(m *domain.ProspectMetric) error {
		m.DMsSent = append(m.DMsSent, domain.DMRecord{MessageID: "m1", SentAt: time.Now(), ResponseType: domain.ResponsePositive})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 100.0, m.ReplyRate, "rates recomputed on every upsert")

	m, err = g.UpsertProspectMetric(ctx, "u1", "p1", "s1", func(m *domain.ProspectMetric) error {
		m.DMsSent = append(m.DMsSent, domain.DMRecord{MessageID: "m2", SentAt: time.Now()})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 50.0, m.ReplyRate)
	assert.Len(t, m.DMsSent, 2)
}

func TestGatewayUserRegistry(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(NewMemory())

	require.NoError(t, g.SaveInsight(ctx, &domain.Insight{UserID: "u1", InsightID: "i1"}))
	require.NoError(t, g.SaveProspect(ctx, &domain.DiscoveredProspect{UserID: "u2", ProspectID: "p1", Name: "Jane Doe"}))

	ids, err := g.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, ids)
}

func TestPatternDocIDDeterministic(t *testing.T) {
	a := PatternDocID(domain.PatternHashtag, "#AIinEDU")
	b := PatternDocID(domain.PatternHashtag, "#AIinEDU")
	assert.Equal(t, a, b)
	assert.Equal(t, "hashtag:-AIinEDU", a)
}

func TestSplitPath(t *testing.T) {
	col, id := SplitPath("users/u1/prospects/p9")
	assert.Equal(t, "users/u1/prospects", col)
	assert.Equal(t, "p9", id)
}
