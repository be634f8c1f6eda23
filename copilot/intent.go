// Package copilot translates free-text operator questions into validated
// read-only graph queries and summarizes the results. Template-rendered and
// model-generated queries alike pass through the safety validator before
// touching the store; there is no bypass path.
package copilot

import (
	"regexp"
	"strconv"
	"strings"
)

// Intent identifies one entry in the template catalog.
type Intent string

// The five supported intents. Classification always lands somewhere:
// questions with no recognizable keyword fall back to team_stats.
const (
	IntentTopAlerts    Intent = "top_alerts"
	IntentTeamTrace    Intent = "team_trace"
	IntentModelImpact  Intent = "model_impact"
	IntentTeamStats    Intent = "team_stats"
	IntentCorrelations Intent = "correlations"
)

// Params are the extracted query parameters echoed back in the response.
type Params struct {
	TeamID string `json:"teamId,omitempty"`
	Days   int    `json:"days"`
	Limit  int    `json:"limit"`
}

// Team ids appear as "팀: X", "team X", or "X 팀" / "X team". The
// label-then-id form is tried first: a combined alternation would let the
// id-then-label branch capture the word preceding "team" (e.g. "for" in
// "stats for team alpha"), so the fallback only runs when no label-first
// form is present.
var (
	teamLabelFirstPattern = regexp.MustCompile(`(?i)(?:팀|team)\s*[:\s]\s*([a-z0-9_-]+)`)
	teamIDFirstPattern    = regexp.MustCompile(`(?i)([a-z0-9_-]+)\s*(?:팀|team)`)
)

// Time windows are a leading integer before a day or week unit token.
var windowPattern = regexp.MustCompile(`(?i)(\d+)\s*(일|day|days|주|week|weeks)`)

// intentBucket is one ordered keyword-membership test.
type intentBucket struct {
	intent   Intent
	keywords []string
	limit    int
}

// Bucket order matters: the first bucket containing any keyword wins.
var intentBuckets = []intentBucket{
	{IntentTopAlerts, []string{"경보", "알람", "alert", "상위", "원인", "top", "cause"}, 10},
	{IntentTeamTrace, []string{"트레이스", "흐름", "trace", "flow", "조치"}, 20},
	{IntentModelImpact, []string{"모델", "버전", "배포", "model", "version", "deploy"}, 10},
	{IntentTeamStats, []string{"통계", "stats", "이벤트", "event"}, 20},
	{IntentCorrelations, []string{"상관", "연관", "correlation"}, 20},
}

// ExtractIntent classifies a free-text question and pulls out its
// parameters. It always produces a result; there is no "no intent" outcome.
func ExtractIntent(text string) (Intent, Params) {
	lower := strings.ToLower(text)

	params := Params{Days: 7}

	if m := teamLabelFirstPattern.FindStringSubmatch(lower); m != nil {
		params.TeamID = m[1]
	} else if m := teamIDFirstPattern.FindStringSubmatch(lower); m != nil {
		params.TeamID = m[1]
	}

	if m := windowPattern.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			unit := m[2]
			if unit == "주" || strings.HasPrefix(unit, "week") {
				n *= 7
			}
			params.Days = n
		}
	}

	for _, bucket := range intentBuckets {
		for _, keyword := range bucket.keywords {
			if strings.Contains(lower, keyword) {
				params.Limit = bucket.limit
				return bucket.intent, params
			}
		}
	}

	params.Limit = 20
	return IntentTeamStats, params
}
