package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// KarmaService screens identities against the Adjutor karma blacklist
// before account opening. Verdicts are cached in Redis so repeated
// signup attempts do not hammer the upstream service.
type KarmaService struct {
	redis  *redis.Client
	client *http.Client
}

type karmaResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func NewKarmaService(redisClient *redis.Client) *KarmaService {
	viper.SetDefault("karma.base_url", "https://adjutor.lendsqr.com/v2/verification/karma")
	viper.SetDefault("karma.timeout", 10*time.Second)
	viper.SetDefault("karma.cache_ttl", time.Hour)

	return &KarmaService{
		redis:  redisClient,
		client: &http.Client{Timeout: viper.GetDuration("karma.timeout")},
	}
}

// IsBlacklisted reports whether the identity appears on the karma
// blacklist. An unreachable upstream fails open: signup screening is a
// best-effort gate, not a ledger invariant.
func (s *KarmaService) IsBlacklisted(ctx context.Context, identity string) (bool, error) {
	cacheKey := fmt.Sprintf("karma:%s", identity)

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			return cached == "1", nil
		}
	}

	blacklisted, err := s.lookup(ctx, identity)
	if err != nil {
		log.Printf("[KARMA] Lookup failed for %s: %v", identity, err)
		return false, err
	}

	if s.redis != nil {
		verdict := "0"
		if blacklisted {
			verdict = "1"
		}
		if err := s.redis.Set(ctx, cacheKey, verdict, viper.GetDuration("karma.cache_ttl")).Err(); err != nil {
			log.Printf("[KARMA] Failed to cache verdict for %s: %v", identity, err)
		}
	}

	return blacklisted, nil
}

func (s *KarmaService) lookup(ctx context.Context, identity string) (bool, error) {
	url := fmt.Sprintf("%s/%s", viper.GetString("karma.base_url"), identity)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+viper.GetString("karma.secret_key"))

	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	// The upstream answers 404 for identities with no karma record.
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("karma lookup returned status %d", resp.StatusCode)
	}

	var payload karmaResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, err
	}

	return payload.Status == "success" && payload.Message == "Successful" && len(payload.Data) > 0, nil
}
