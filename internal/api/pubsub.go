package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/predeactor/captchad/internal/domain"
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	ChallengeResult struct {
		SessionID string `json:"session_id"`
		Guild     string `json:"guild"`
		Member    string `json:"member"`
		Name      string `json:"name"`
		Reason    string `json:"reason,omitempty"`
		Actions   string `json:"actions,omitempty"`
	}
)

func (a *API) PublishChallengePassed(ctx context.Context, e domain.EventChallengePassed) error {
	return a.publishResult(ctx, e.Name(), ChallengeResult{
		SessionID: e.SessionID,
		Guild:     string(e.Entity.Guild),
		Member:    string(e.Entity.ID),
		Name:      e.Entity.Name,
		Actions:   e.Actions,
	})
}

func (a *API) PublishChallengeFailed(ctx context.Context, e domain.EventChallengeFailed) error {
	return a.publishResult(ctx, e.Name(), ChallengeResult{
		SessionID: e.SessionID,
		Guild:     string(e.Entity.Guild),
		Member:    string(e.Entity.ID),
		Name:      e.Entity.Name,
		Reason:    e.Reason,
	})
}

func (a *API) PublishChallengeCancelled(ctx context.Context, e domain.EventChallengeCancelled) error {
	return a.publishResult(ctx, e.Name(), ChallengeResult{
		SessionID: e.SessionID,
		Guild:     string(e.Entity.Guild),
		Member:    string(e.Entity.ID),
		Name:      e.Entity.Name,
	})
}

// publishResult notifies both the guild channel and the member channel, so
// moderation dashboards and per-member integrations each get their feed.
func (a *API) publishResult(ctx context.Context, event string, data ChallengeResult) error {
	channels := []string{
		fmt.Sprintf("%s:guild:%s", a.prefix, data.Guild),
		fmt.Sprintf("%s:member:%s", a.prefix, data.Member),
	}

	var eg errgroup.Group
	for _, ch := range channels {
		ch := ch
		eg.Go(func() error {
			return a.publishNotification(ctx, ch, event, data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}
