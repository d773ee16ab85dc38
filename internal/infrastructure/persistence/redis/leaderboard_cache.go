package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/modpoints/points-bot/internal/domain/ledger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache stores monthly leaderboard snapshots as JSON.
//
// Key layout:
//   - "leaderboard:{YYYY-MM}:version" holds the period version counter
//   - "leaderboard:{YYYY-MM}:v{version}:{limit}" holds the ordered top entries
//
// Recording or undoing a completion bumps the version, so a snapshot built
// from a read that raced the write lands under a version nobody reads and
// expires with its TTL.
type LeaderboardCache struct {
	cache *Cache
	ttl   time.Duration
}

var _ ledger.LeaderboardCache = (*LeaderboardCache)(nil)

// Version counters outlive the month they count.
const leaderboardVersionTTL = 62 * 24 * time.Hour

// cachedEntry is the JSON shape of one leaderboard row.
type cachedEntry struct {
	UserID      int64   `json:"user_id"`
	TotalPoints float64 `json:"total_points"`
	Completions int     `json:"completions"`
}

// NewLeaderboardCache creates a new LeaderboardCache instance.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache, ttl: cache.config.LeaderboardTTL}
}

// LeaderboardKey returns the key of a period snapshot at a version.
func LeaderboardKey(period ledger.Period, version int64, limit int) string {
	return fmt.Sprintf("%s%s:v%d:%d", PrefixLeaderboard, period, version, limit)
}

// LeaderboardVersionKey returns the key of the period version counter.
func LeaderboardVersionKey(period ledger.Period) string {
	return fmt.Sprintf("%s%s:version", PrefixLeaderboard, period)
}

// LeaderboardPattern matches every snapshot of a period but not its counter.
func LeaderboardPattern(period ledger.Period) string {
	return fmt.Sprintf("%s%s:v*:*", PrefixLeaderboard, period)
}

func (l *LeaderboardCache) version(ctx context.Context, period ledger.Period) (int64, error) {
	raw, err := l.cache.GetString(ctx, LeaderboardVersionKey(period))
	if errors.Is(err, ErrCacheMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: version %q", ErrCacheSerialization, raw)
	}
	return v, nil
}

// GetTop returns the snapshot at the current version, or nil on a miss.
// The version is returned either way for the following SetTop.
func (l *LeaderboardCache) GetTop(ctx context.Context, period ledger.Period, limit int) ([]ledger.LeaderboardEntry, int64, error) {
	version, err := l.version(ctx, period)
	if err != nil {
		return nil, 0, err
	}

	var cached []cachedEntry
	err = l.cache.Get(ctx, LeaderboardKey(period, version, limit), &cached)
	if errors.Is(err, ErrCacheMiss) {
		return nil, version, nil
	}
	if err != nil {
		return nil, 0, err
	}

	entries := make([]ledger.LeaderboardEntry, len(cached))
	for i, c := range cached {
		entries[i] = ledger.LeaderboardEntry{
			UserID:      c.UserID,
			TotalPoints: c.TotalPoints,
			Completions: c.Completions,
		}
	}
	return entries, version, nil
}

// SetTop stores a snapshot under version. Empty leaderboards are stored too,
// so an empty month does not hit the database on every request.
func (l *LeaderboardCache) SetTop(ctx context.Context, period ledger.Period, limit int, version int64, entries []ledger.LeaderboardEntry) error {
	cached := make([]cachedEntry, len(entries))
	for i, e := range entries {
		cached[i] = cachedEntry{
			UserID:      e.UserID,
			TotalPoints: e.TotalPoints,
			Completions: e.Completions,
		}
	}
	return l.cache.Set(ctx, LeaderboardKey(period, version, limit), cached, l.ttl)
}

// Invalidate bumps the period version and drops the old snapshots.
func (l *LeaderboardCache) Invalidate(ctx context.Context, period ledger.Period) error {
	if _, err := l.cache.Incr(ctx, LeaderboardVersionKey(period), leaderboardVersionTTL); err != nil {
		return err
	}
	return l.cache.DeleteByPattern(ctx, LeaderboardPattern(period))
}
