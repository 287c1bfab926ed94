package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/predeactor/captchad/internal/domain"
	"github.com/predeactor/captchad/internal/errors"
	"github.com/predeactor/captchad/internal/event"
	"github.com/predeactor/captchad/internal/session"
)

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Engine       *session.Engine
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	engine *session.Engine

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		engine: c.Engine,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	// HTTP APIs
	v1 := c.Router.Group("/v1")
	v1.POST("/events/member-joined", a.memberJoined)
	v1.POST("/events/member-left", a.memberLeft)
	v1.POST("/guilds/:guild/members/:member/challenge", a.triggerChallenge)
	v1.DELETE("/guilds/:guild/members/:member/challenge", a.cancelChallenge)
	v1.GET("/guilds/:guild/challenges", a.listChallenges)

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameChallengePassed, func(ctx context.Context, e event.Event) error {
		return a.PublishChallengePassed(ctx, e.(domain.EventChallengePassed))
	})
	c.EventBus.Subscribe(domain.EventNameChallengeFailed, func(ctx context.Context, e event.Event) error {
		return a.PublishChallengeFailed(ctx, e.(domain.EventChallengeFailed))
	})
	c.EventBus.Subscribe(domain.EventNameChallengeCancelled, func(ctx context.Context, e event.Event) error {
		return a.PublishChallengeCancelled(ctx, e.(domain.EventChallengeCancelled))
	})

	return a
}

type memberEvent struct {
	Guild  string `json:"guild" binding:"required"`
	Member string `json:"member" binding:"required"`
	Name   string `json:"name"`
}

func (a *API) memberJoined(c *gin.Context) {
	var req memberEvent
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("%v", err)))
		return
	}

	err := a.engine.OnEntityJoined(c.Request.Context(), domain.Entity{
		ID:    domain.EntityID(req.Member),
		Guild: domain.GuildID(req.Guild),
		Name:  req.Name,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

func (a *API) memberLeft(c *gin.Context) {
	var req memberEvent
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("%v", err)))
		return
	}

	a.engine.OnEntityLeft(c.Request.Context(), domain.EntityID(req.Member))
	c.Status(http.StatusAccepted)
}

func (a *API) triggerChallenge(c *gin.Context) {
	entity := domain.Entity{
		ID:    domain.EntityID(c.Param("member")),
		Guild: domain.GuildID(c.Param("guild")),
		Name:  c.Param("member"),
	}

	if err := a.engine.ManualTrigger(c.Request.Context(), entity); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

func (a *API) cancelChallenge(c *gin.Context) {
	if err := a.engine.ManualCancel(c.Request.Context(), domain.EntityID(c.Param("member"))); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type challengeView struct {
	SessionID string `json:"session_id"`
	Member    string `json:"member"`
	Name      string `json:"name"`
	State     string `json:"state"`
	Attempts  int    `json:"attempts"`
	StartedAt string `json:"started_at"`
}

func (a *API) listChallenges(c *gin.Context) {
	guild := domain.GuildID(c.Param("guild"))

	out := make([]challengeView, 0)
	for _, info := range a.engine.Running() {
		if info.Entity.Guild != guild {
			continue
		}
		out = append(out, challengeView{
			SessionID: info.SessionID,
			Member:    string(info.Entity.ID),
			Name:      info.Entity.Name,
			State:     string(info.State),
			Attempts:  info.Attempts,
			StartedAt: info.StartedAt.UTC().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"challenges": out})
}

func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{
		"code":    e.Code,
		"message": e.Message,
	})
}
