package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
)

// BuildWeeklyReport aggregates one [weekStart, weekStart+7d) window into a
// report, persists it, and archives a JSON copy when an archiver is
// configured. The report is fully deterministic for a fixed window and
// metric set.
func (c *Core) BuildWeeklyReport(ctx context.Context, userID string, weekStart time.Time) (*domain.WeeklyReport, error) {
	weekStart = weekStart.UTC().Truncate(24 * time.Hour)
	weekEnd := weekStart.AddDate(0, 0, 7)

	contentMetrics, err := c.gw.ListContentMetricsSince(ctx, userID, weekStart)
	if err != nil {
		return nil, err
	}
	prospectMetrics, err := c.gw.ListProspectMetricsSince(ctx, userID, weekStart)
	if err != nil {
		return nil, err
	}

	report := &domain.WeeklyReport{
		UserID:         userID,
		ReportID:       uuid.NewString(),
		WeekStart:      weekStart,
		WeekEnd:        weekEnd,
		PillarAverages: map[domain.Pillar]float64{},
		TopHashtags:    []string{},
		TopSegments:    []string{},
		GeneratedAt:    c.opts.Clock.Now().UTC(),
	}

	pillarTotals := map[domain.Pillar]float64{}
	pillarCounts := map[domain.Pillar]int{}
	hashtagEngagement := map[string]int{}
	segmentEngagement := map[string]int{}
	var rateSum float64

	for _, m := range contentMetrics {
		if !m.CreatedAt.Before(weekEnd) {
			continue
		}
		report.TotalPosts++
		rateSum += m.EngagementRate
		pillarTotals[m.Pillar] += m.EngagementRate
		pillarCounts[m.Pillar]++
		raw := m.Metrics.Likes + m.Metrics.Comments + m.Metrics.Shares
		for _, tag := range m.TopHashtags {
			hashtagEngagement[tag] += raw
		}
		for _, seg := range m.AudienceSegment {
			segmentEngagement[seg] += raw
		}
	}

	if report.TotalPosts > 0 {
		report.AvgEngagementRate = round2(rateSum / float64(report.TotalPosts))
	}
	for pillar, total := range pillarTotals {
		report.PillarAverages[pillar] = round2(total / float64(pillarCounts[pillar]))
	}
	report.BestPillar = argmaxPillar(report.PillarAverages)
	report.TopHashtags = topKeys(hashtagEngagement, 5)
	report.TopSegments = topKeys(segmentEngagement, 3)
	report.Outreach = summarizeOutreach(prospectMetrics, weekEnd)
	report.Recommendations = recommendations(report, pillarCounts, c.opts.PacerMix)

	if err := c.gw.SaveWeeklyReport(ctx, report); err != nil {
		return nil, err
	}
	c.archive(ctx, report)

	c.publish(ctx, userID, "Weekly report generated", map[string]interface{}{
		"report_id":   report.ReportID,
		"week_start":  weekStart.Format("2006-01-02"),
		"total_posts": report.TotalPosts,
		"best_pillar": string(report.BestPillar),
	})
	return report, nil
}

func summarizeOutreach(metrics []domain.ProspectMetric, weekEnd time.Time) domain.OutreachSummary {
	var s domain.OutreachSummary
	positive := 0
	for _, m := range metrics {
		if !m.UpdatedAt.Before(weekEnd) {
			continue
		}
		if m.ConnectionRequestSent {
			s.ConnectionRequestsSent++
		}
		if m.ConnectionAccepted {
			s.ConnectionsAccepted++
		}
		s.DMsSent += len(m.DMsSent)
		s.MeetingsBooked += len(m.MeetingsBooked)
		for _, dm := range m.DMsSent {
			if dm.ResponseType == domain.ResponsePositive {
				positive++
			}
		}
	}
	if s.ConnectionRequestsSent > 0 {
		s.ConnectionAcceptRate = round2(float64(s.ConnectionsAccepted) / float64(s.ConnectionRequestsSent) * 100)
	}
	if s.DMsSent > 0 {
		s.DMReplyRate = round2(float64(positive) / float64(s.DMsSent) * 100)
	}
	return s
}

// recommendations derive from the aggregates by fixed rules, so the same
// report body always yields the same advice in the same order. Pillar-mix
// advice comes last: a pillar posting under half its target share gets
// flagged.
func recommendations(r *domain.WeeklyReport, pillarCounts map[domain.Pillar]int, mix map[domain.Pillar]float64) []string {
	var recs []string
	if r.TotalPosts == 0 {
		recs = append(recs, "No posts recorded this week; schedule at least one post per pillar.")
	}
	for _, pillar := range domain.Pillars {
		avg, ok := r.PillarAverages[pillar]
		if !ok {
			continue
		}
		if r.AvgEngagementRate > 0 && avg > 1.2*r.AvgEngagementRate {
			recs = append(recs, fmt.Sprintf("Increase %s posts: averaging %.2f%% vs %.2f%% overall.", pillar, avg, r.AvgEngagementRate))
		}
	}
	if len(r.TopHashtags) > 0 {
		recs = append(recs, fmt.Sprintf("Keep using %s; it drove the most engagement this week.", r.TopHashtags[0]))
	}
	if r.Outreach.ConnectionRequestsSent >= 5 && r.Outreach.ConnectionAcceptRate < 30 {
		recs = append(recs, fmt.Sprintf("Connection accept rate is %.2f%%; refresh the connection request templates.", r.Outreach.ConnectionAcceptRate))
	}
	if r.Outreach.DMsSent >= 5 && r.Outreach.DMReplyRate > 20 {
		recs = append(recs, fmt.Sprintf("DM reply rate is %.2f%%; expand the current sequences to more prospects.", r.Outreach.DMReplyRate))
	}
	if r.TotalPosts > 0 {
		for _, pillar := range domain.Pillars {
			target := mix[pillar]
			if target <= 0 {
				continue
			}
			share := float64(pillarCounts[pillar]) / float64(r.TotalPosts)
			if share < 0.5*target {
				recs = append(recs, fmt.Sprintf("%s posts are %.0f%% of the week against a %.0f%% target; add more to hold the mix.",
					pillar, share*100, target*100))
			}
		}
	}
	return recs
}

func argmaxPillar(averages map[domain.Pillar]float64) domain.Pillar {
	var best domain.Pillar
	bestAvg := -1.0
	for _, pillar := range domain.Pillars {
		if avg, ok := averages[pillar]; ok && avg > bestAvg {
			best, bestAvg = pillar, avg
		}
	}
	return best
}

// topKeys orders keys by descending total, name asc on ties, top n.
func topKeys(totals map[string]int, n int) []string {
	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if totals[keys[i]] != totals[keys[j]] {
			return totals[keys[i]] > totals[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// archive pushes the report JSON to the configured archiver. Archive
// failures never fail report generation.
func (c *Core) archive(ctx context.Context, report *domain.WeeklyReport) {
	if c.archiver == nil {
		return
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return
	}
	key := fmt.Sprintf("reports/%s/%s.json", report.UserID, report.WeekStart.Format("2006-01-02"))
	if err := c.archiver.Archive(ctx, key, body); err != nil {
		logger.Warn("report archive failed", "user_id", report.UserID, "key", key, "error", err.Error())
	}
}
