package copilot

// The template catalog: one parameterized query shape per intent, authored
// once and reviewed. Values are always bound as parameters, never inlined;
// the safety validator remains a second, independent layer of defense on
// top of that. Each intent has a team-filtered and an unfiltered variant.

const topAlertsTeamQuery = `
MATCH (p:PolicyRule)-[:FIRED_ON]->(e:Event)-[:AFFECTS]->(t:Team {id: $teamId})
WHERE datetime(e.ts) > datetime() - duration({days: $days})
RETURN p.id AS rule, count(*) AS hits, collect(DISTINCT e.type) AS eventTypes
ORDER BY hits DESC LIMIT $limit`

const topAlertsAllQuery = `
MATCH (p:PolicyRule)-[:FIRED_ON]->(e:Event)
WHERE datetime(e.ts) > datetime() - duration({days: $days})
RETURN p.id AS rule, count(*) AS hits, collect(DISTINCT e.type) AS eventTypes
ORDER BY hits DESC LIMIT $limit`

const teamTraceTeamQuery = `
MATCH (t:Team {id: $teamId})<-[:AFFECTS]-(e:Event)
WHERE datetime(e.ts) > datetime() - duration({days: $days})
OPTIONAL MATCH (e)-[:TRIGGERED]->(a:Action)
RETURN e.id AS eventId, e.type AS eventType, e.ts AS eventTime,
       a.id AS actionId, a.type AS actionType, a.ts AS actionTime
ORDER BY e.ts DESC LIMIT $limit`

const teamTraceAllQuery = `
MATCH (t:Team)<-[:AFFECTS]-(e:Event)
WHERE datetime(e.ts) > datetime() - duration({days: $days})
OPTIONAL MATCH (e)-[:TRIGGERED]->(a:Action)
RETURN t.id AS team, e.id AS eventId, e.type AS eventType, e.ts AS eventTime,
       a.id AS actionId, a.type AS actionType, a.ts AS actionTime
ORDER BY e.ts DESC LIMIT $limit`

const modelImpactTeamQuery = `
MATCH (v:ModelVersion)-[:DEPLOYED_FOR]->(t:Team {id: $teamId})
OPTIONAL MATCH (t)<-[:AFFECTS]-(e:Event)
WHERE datetime(e.ts) > datetime() - duration({days: $days})
RETURN t.id AS team, v.ver AS version, count(e) AS anomalies, collect(DISTINCT e.type) AS eventTypes
ORDER BY anomalies DESC LIMIT $limit`

const modelImpactAllQuery = `
MATCH (v:ModelVersion)-[:DEPLOYED_FOR]->(t:Team)
OPTIONAL MATCH (t)<-[:AFFECTS]-(e:Event)
WHERE datetime(e.ts) > datetime() - duration({days: $days})
RETURN t.id AS team, v.ver AS version, count(e) AS anomalies, collect(DISTINCT e.type) AS eventTypes
ORDER BY anomalies DESC LIMIT $limit`

const teamStatsTeamQuery = `
MATCH (t:Team {id: $teamId})
OPTIONAL MATCH (e:Event)-[:AFFECTS]->(t)
WHERE datetime(e.ts) > datetime() - duration({days: $days})
RETURN t.id AS team, count(e) AS eventCount,
       collect(DISTINCT e.type) AS eventTypes,
       collect(DISTINCT e.id) AS eventIds
ORDER BY eventCount DESC LIMIT $limit`

const teamStatsAllQuery = `
MATCH (t:Team)
OPTIONAL MATCH (e:Event)-[:AFFECTS]->(t)
WHERE datetime(e.ts) > datetime() - duration({days: $days})
RETURN t.id AS team, count(e) AS eventCount,
       collect(DISTINCT e.type) AS eventTypes,
       collect(DISTINCT e.id) AS eventIds
ORDER BY eventCount DESC LIMIT $limit`

const correlationsTeamQuery = `
MATCH (e1:Event)-[c:CORRELATED_WITH]->(e2:Event)
MATCH (e1)-[:AFFECTS]->(t:Team {id: $teamId})
MATCH (e2)-[:AFFECTS]->(t)
WHERE datetime(e1.ts) > datetime() - duration({days: $days})
RETURN e1.id AS event1, e2.id AS event2, c.score AS correlation
ORDER BY c.score DESC LIMIT $limit`

const correlationsAllQuery = `
MATCH (e1:Event)-[c:CORRELATED_WITH]->(e2:Event)
WHERE datetime(e1.ts) > datetime() - duration({days: $days})
RETURN e1.id AS event1, e2.id AS event2, c.score AS correlation
ORDER BY c.score DESC LIMIT $limit`

// template holds the two variants of one catalog entry
type template struct {
	team string
	all  string
}

var catalog = map[Intent]template{
	IntentTopAlerts:    {team: topAlertsTeamQuery, all: topAlertsAllQuery},
	IntentTeamTrace:    {team: teamTraceTeamQuery, all: teamTraceAllQuery},
	IntentModelImpact:  {team: modelImpactTeamQuery, all: modelImpactAllQuery},
	IntentTeamStats:    {team: teamStatsTeamQuery, all: teamStatsAllQuery},
	IntentCorrelations: {team: correlationsTeamQuery, all: correlationsAllQuery},
}

// Intents lists every catalog entry, for tests and introspection.
func Intents() []Intent {
	return []Intent{IntentTopAlerts, IntentTeamTrace, IntentModelImpact, IntentTeamStats, IntentCorrelations}
}

// RenderTemplate produces a parameterized query for an intent. The second
// return is false when the catalog has no entry, which routes the request
// to the fallback generator.
func RenderTemplate(intent Intent, params Params) (string, map[string]any, bool) {
	tmpl, ok := catalog[intent]
	if !ok {
		return "", nil, false
	}

	bindings := map[string]any{
		"days":  params.Days,
		"limit": params.Limit,
	}
	if params.TeamID != "" {
		bindings["teamId"] = params.TeamID
		return tmpl.team, bindings, true
	}
	return tmpl.all, bindings, true
}
