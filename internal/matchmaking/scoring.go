package matchmaking

import (
	"math"

	"github.com/orincore/circle-core/internal/model"
)

const (
	weightInterests   = 0.45
	weightLocation    = 0.30
	weightReciprocity = 0.15
	weightFreshness   = 0.10

	radiusNearbyKm  = 5.0
	radiusCityKm    = 50.0
	radiusCountryKm = 500.0
)

// radiusForPreference maps a location preference to the search radius it
// tolerates; "anywhere" has no effective radius cap.
func radiusForPreference(pref model.LocationPreference) float64 {
	switch pref {
	case model.LocationNearby:
		return radiusNearbyKm
	case model.LocationCity:
		return radiusCityKm
	case model.LocationCountry:
		return radiusCountryKm
	default:
		return math.Inf(1)
	}
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// jaccard is the interests-overlap score: |union(A.interests ∪ A.needs,
// B.interests ∪ B.needs) ∩| over their union.
func jaccard(a, b *model.Profile) float64 {
	setA := unionSets(a.Interests, a.Needs)
	setB := unionSets(b.Interests, b.Needs)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	inter := 0
	for k := range setA {
		if _, ok := setB[k]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func unionSets(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

// locationScore is 1.0 when neither profile has coordinates, otherwise
// falls off linearly with distance against the radius of ticket t's
// location preference.
func locationScore(a, b *model.Profile, pref model.LocationPreference) float64 {
	if a.Coords == nil && b.Coords == nil {
		return 1.0
	}
	if a.Coords == nil || b.Coords == nil {
		return 0
	}
	radius := radiusForPreference(pref)
	if math.IsInf(radius, 1) {
		return 1.0
	}
	dist := haversineKm(a.Coords.Lat, a.Coords.Lon, b.Coords.Lat, b.Coords.Lon)
	return math.Max(0, 1-dist/radius)
}

// criteriaMatch reports whether candidate c's profile satisfies ticket t's
// criteria (gender, age band).
func criteriaMatch(criteria model.MatchmakingCriteria, candidate *model.Profile) bool {
	if criteria.GenderPreference != "" && criteria.GenderPreference != "any" && criteria.GenderPreference != candidate.Gender {
		return false
	}
	if criteria.AgeMin > 0 && candidate.Age < criteria.AgeMin {
		return false
	}
	if criteria.AgeMax > 0 && candidate.Age > criteria.AgeMax {
		return false
	}
	return true
}

// reciprocityBoost is 1.0 when the candidate's own criteria would also
// accept the ticket's owner, else 0.5.
func reciprocityBoost(tCriteria, cCriteria model.MatchmakingCriteria, tProfile, cProfile *model.Profile) float64 {
	if criteriaMatch(cCriteria, tProfile) && criteriaMatch(tCriteria, cProfile) {
		return 1.0
	}
	return 0.5
}

// freshness rewards a more recently queued candidate, 1.0 at queued-now
// decaying to 0 at the stale-ticket horizon.
func freshness(candidateQueuedAt, now, horizonAgo float64) float64 {
	age := now - candidateQueuedAt
	if horizonAgo <= 0 {
		return 0
	}
	score := 1 - age/horizonAgo
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// score is the weighted sum from the pass algorithm, given already-fetched
// profiles and unix-second timestamps for the freshness term.
func score(tCriteria, cCriteria model.MatchmakingCriteria, tProfile, cProfile *model.Profile, pref model.LocationPreference, candidateQueuedAtUnix, nowUnix, horizonSeconds float64) float64 {
	return jaccard(tProfile, cProfile)*weightInterests +
		locationScore(tProfile, cProfile, pref)*weightLocation +
		reciprocityBoost(tCriteria, cCriteria, tProfile, cProfile)*weightReciprocity +
		freshness(candidateQueuedAtUnix, nowUnix, horizonSeconds)*weightFreshness
}
