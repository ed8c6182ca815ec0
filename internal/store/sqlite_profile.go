package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/orincore/circle-core/internal/model"
)

func joinSet(set map[string]struct{}) string {
	if len(set) == 0 {
		return ""
	}
	items := make([]string, 0, len(set))
	for k := range set {
		items = append(items, k)
	}
	return strings.Join(items, ",")
}

func splitSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	if s == "" {
		return out
	}
	for _, item := range strings.Split(s, ",") {
		out[item] = struct{}{}
	}
	return out
}

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT id, display_name, first_name, last_name, age, gender,
		lat, lon, coords_updated_at, interests, needs, about, location_pref, age_pref,
		friendship_location_priority, relationship_distance_flex, invisible, suspended, deleted_at
		FROM profiles WHERE id = ?`, userID)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func scanProfile(row *sql.Row) (*model.Profile, error) {
	var p model.Profile
	var lat, lon sql.NullFloat64
	var coordsAt, deletedAt sql.NullTime
	var interests, needs, firstName, lastName, locPref, agePref sql.NullString
	var friendshipPriority, distanceFlex, invisible, suspended int

	err := row.Scan(&p.ID, &p.DisplayName, &firstName, &lastName, &p.Age, &p.Gender,
		&lat, &lon, &coordsAt, &interests, &needs, &p.About, &locPref, &agePref,
		&friendshipPriority, &distanceFlex, &invisible, &suspended, &deletedAt)
	if err != nil {
		return nil, err
	}
	p.FirstName = firstName.String
	p.LastName = lastName.String
	p.Interests = splitSet(interests.String)
	p.Needs = splitSet(needs.String)
	p.Prefs = model.Preferences{
		Location:                   model.LocationPreference(locPref.String),
		Age:                        model.AgePreference(agePref.String),
		FriendshipLocationPriority: friendshipPriority == 1,
		RelationshipDistanceFlex:   distanceFlex == 1,
	}
	p.Invisible = invisible == 1
	p.Suspended = suspended == 1
	if deletedAt.Valid {
		t := deletedAt.Time
		p.DeletedAt = &t
	}
	if lat.Valid && lon.Valid {
		p.Coords = &model.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
		if coordsAt.Valid {
			p.Coords.UpdatedAt = coordsAt.Time
		}
	}
	return &p, nil
}

func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *model.Profile) error {
	// A profile with any location field set must have first and last
	// name set.
	if p.Coords != nil && (p.FirstName == "" || p.LastName == "") {
		return fmt.Errorf("profile %s: location requires first and last name", p.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var lat, lon sql.NullFloat64
	var coordsAt sql.NullTime
	if p.Coords != nil {
		lat = sql.NullFloat64{Float64: p.Coords.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: p.Coords.Lon, Valid: true}
		coordsAt = sql.NullTime{Time: p.Coords.UpdatedAt, Valid: true}
	}
	var deletedAt sql.NullTime
	if p.DeletedAt != nil {
		deletedAt = sql.NullTime{Time: *p.DeletedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO profiles
		(id, display_name, first_name, last_name, age, gender, lat, lon, coords_updated_at,
		 interests, needs, about, location_pref, age_pref, friendship_location_priority,
		 relationship_distance_flex, invisible, suspended, deleted_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			display_name=excluded.display_name, first_name=excluded.first_name,
			last_name=excluded.last_name, age=excluded.age, gender=excluded.gender,
			lat=excluded.lat, lon=excluded.lon, coords_updated_at=excluded.coords_updated_at,
			interests=excluded.interests, needs=excluded.needs, about=excluded.about,
			location_pref=excluded.location_pref, age_pref=excluded.age_pref,
			friendship_location_priority=excluded.friendship_location_priority,
			relationship_distance_flex=excluded.relationship_distance_flex,
			invisible=excluded.invisible, suspended=excluded.suspended, deleted_at=excluded.deleted_at`,
		p.ID, p.DisplayName, p.FirstName, p.LastName, p.Age, p.Gender, lat, lon, coordsAt,
		joinSet(p.Interests), joinSet(p.Needs), p.About, string(p.Prefs.Location), string(p.Prefs.Age),
		boolInt(p.Prefs.FriendshipLocationPriority), boolInt(p.Prefs.RelationshipDistanceFlex),
		boolInt(p.Invisible), boolInt(p.Suspended), deletedAt)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) ProfilesByIDs(ctx context.Context, ids []string) (map[string]*model.Profile, error) {
	out := make(map[string]*model.Profile, len(ids))
	for _, id := range ids {
		p, err := s.GetProfile(ctx, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out[id] = p
		}
	}
	return out, nil
}

// haversineKm returns the great-circle distance between two points in km.
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

// ProfilesNear prefilters with a bounding box (cheap, index-friendly), then
// refines client-side with Haversine, explicit allowance.
func (s *SQLiteStore) ProfilesNear(ctx context.Context, lat, lon, radiusKm float64, excluding map[string]struct{}) ([]*model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// ~1 degree latitude is ~111km; pad generously for the box prefilter.
	degPad := radiusKm/111.0 + 0.1
	rows, err := s.db.QueryContext(ctx, `SELECT id, display_name, first_name, last_name, age, gender,
		lat, lon, coords_updated_at, interests, needs, about, location_pref, age_pref,
		friendship_location_priority, relationship_distance_flex, invisible, suspended, deleted_at
		FROM profiles
		WHERE lat IS NOT NULL AND lon IS NOT NULL
		  AND lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?
		  AND suspended = 0 AND deleted_at IS NULL`,
		lat-degPad, lat+degPad, lon-degPad, lon+degPad)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Profile
	for rows.Next() {
		p, err := scanProfileRows(rows)
		if err != nil {
			return nil, err
		}
		if _, skip := excluding[p.ID]; skip {
			continue
		}
		if p.Coords == nil {
			continue
		}
		if haversineKm(lat, lon, p.Coords.Lat, p.Coords.Lon) <= radiusKm {
			out = append(out, p)
		}
	}
	return out, rows.Err()
}

func scanProfileRows(rows *sql.Rows) (*model.Profile, error) {
	var p model.Profile
	var lat, lon sql.NullFloat64
	var coordsAt, deletedAt sql.NullTime
	var interests, needs, firstName, lastName, locPref, agePref sql.NullString
	var friendshipPriority, distanceFlex, invisible, suspended int

	err := rows.Scan(&p.ID, &p.DisplayName, &firstName, &lastName, &p.Age, &p.Gender,
		&lat, &lon, &coordsAt, &interests, &needs, &p.About, &locPref, &agePref,
		&friendshipPriority, &distanceFlex, &invisible, &suspended, &deletedAt)
	if err != nil {
		return nil, err
	}
	p.FirstName = firstName.String
	p.LastName = lastName.String
	p.Interests = splitSet(interests.String)
	p.Needs = splitSet(needs.String)
	p.Prefs = model.Preferences{
		Location:                   model.LocationPreference(locPref.String),
		Age:                        model.AgePreference(agePref.String),
		FriendshipLocationPriority: friendshipPriority == 1,
		RelationshipDistanceFlex:   distanceFlex == 1,
	}
	p.Invisible = invisible == 1
	p.Suspended = suspended == 1
	if deletedAt.Valid {
		t := deletedAt.Time
		p.DeletedAt = &t
	}
	if lat.Valid && lon.Valid {
		p.Coords = &model.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
		if coordsAt.Valid {
			p.Coords.UpdatedAt = coordsAt.Time
		}
	}
	return &p, nil
}

func (s *SQLiteStore) GetFriendship(ctx context.Context, userA, userB string) (*model.Friendship, error) {
	lo, hi := model.CanonicalPair(userA, userB)
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT user1, user2, sender, status, created_at, updated_at
		FROM friendships WHERE user1 = ? AND user2 = ?`, lo, hi)
	var f model.Friendship
	err := row.Scan(&f.User1, &f.User2, &f.Sender, &f.Status, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// UpsertFriendship enforces the canonicalization and transition invariants:
// at most one row per unordered pair; once status is blocked it stays
// blocked until an explicit unblock (a status write that is itself
// "blocked" is idempotent; anything else moving away from blocked is
// rejected as a conflict, the caller treats it as already-correct).
func (s *SQLiteStore) UpsertFriendship(ctx context.Context, f *model.Friendship) error {
	lo, hi := model.CanonicalPair(f.User1, f.User2)
	f.User1, f.User2 = lo, hi

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.db.QueryRowContext(ctx, `SELECT status FROM friendships WHERE user1=? AND user2=?`, lo, hi)
	var currentStatus string
	err := existing.Scan(&currentStatus)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if err == nil && currentStatus == string(model.FriendshipBlocked) && f.Status != model.FriendshipBlocked {
		// Blocked is terminal until an explicit unblock elsewhere; treat as
		// a no-op conflict rather than silently reverting the block.
		return nil
	}

	now := f.UpdatedAt
	_, execErr := s.db.ExecContext(ctx, `INSERT INTO friendships(user1, user2, sender, status, created_at, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(user1, user2) DO UPDATE SET status=excluded.status, updated_at=excluded.updated_at`,
		lo, hi, f.Sender, string(f.Status), f.CreatedAt, now)
	return execErr
}

func (s *SQLiteStore) IsBlockedEitherWay(ctx context.Context, a, b string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks
		WHERE (blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)`,
		a, b, b, a).Scan(&count)
	return count > 0, err
}

func (s *SQLiteStore) CreateBlock(ctx context.Context, blocker, blocked string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO blocks(blocker_id, blocked_id) VALUES (?,?)`, blocker, blocked)
	return err
}
