package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"assessment-rating-service/internal/domain"
)

const phasesKey = "leaderboard:phases"

// LeaderboardStore keeps one JSON document per phase: SET leaderboard:{phaseID} {json}
// Known phases are tracked in the set leaderboard:phases for the sweep.
type LeaderboardStore struct {
	client *redis.Client
}

func NewLeaderboardStore(client *redis.Client) *LeaderboardStore {
	return &LeaderboardStore{client: client}
}

func (s *LeaderboardStore) GetLeaderboard(ctx context.Context, phaseID string) (domain.Leaderboard, error) {
	raw, err := s.client.Get(ctx, leaderboardKey(phaseID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Leaderboard{}, domain.ErrLeaderboardNotFound
	}
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("get leaderboard: %w", err)
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal(raw, &lb); err != nil {
		return domain.Leaderboard{}, fmt.Errorf("decode leaderboard: %w", err)
	}
	return lb, nil
}

func (s *LeaderboardStore) SaveLeaderboard(ctx context.Context, lb domain.Leaderboard) error {
	raw, err := json.Marshal(lb)
	if err != nil {
		return fmt.Errorf("encode leaderboard: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, leaderboardKey(lb.PhaseID), raw, 0)
	pipe.SAdd(ctx, phasesKey, lb.PhaseID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save leaderboard: %w", err)
	}
	return nil
}

func (s *LeaderboardStore) ListPhases(ctx context.Context) ([]string, error) {
	phases, err := s.client.SMembers(ctx, phasesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list phases: %w", err)
	}
	sort.Strings(phases)
	return phases, nil
}

func leaderboardKey(phaseID string) string {
	return "leaderboard:" + phaseID
}
