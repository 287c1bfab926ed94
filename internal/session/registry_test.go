package session_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/predeactor/captchad/internal/domain"
	"github.com/predeactor/captchad/internal/errors"
	"github.com/predeactor/captchad/internal/gateway"
	"github.com/predeactor/captchad/internal/session"
)

func TestRegistry_CreateIfAbsent(t *testing.T) {
	r := session.NewRegistry()

	first := makeSession(t, "u1")
	second := makeSession(t, "u1")

	require.NoError(t, r.CreateIfAbsent(first))

	err := r.CreateIfAbsent(second)
	require.True(t, errors.IsCode(err, errors.CodeAlreadyExists))

	// The first registration must still be the live one.
	got, ok := r.Get("u1")
	require.True(t, ok)
	require.Same(t, first, got)
}

func TestRegistry_CreateIfAbsent_ConcurrentTriggers(t *testing.T) {
	r := session.NewRegistry()

	const racers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.CreateIfAbsent(makeSession(t, "u1")); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins, "exactly one concurrent trigger should win")
	require.Equal(t, 1, r.Len())
}

func TestRegistry_Remove(t *testing.T) {
	r := session.NewRegistry()

	require.False(t, r.Remove("u1"))

	require.NoError(t, r.CreateIfAbsent(makeSession(t, "u1")))
	require.True(t, r.Remove("u1"))
	require.False(t, r.Remove("u1"))
	require.Zero(t, r.Len())
}

func makeSession(t *testing.T, entity domain.EntityID) *session.Session {
	t.Helper()

	fake := gateway.NewFake()
	return session.New(session.Config{
		ID:        "s-" + string(entity),
		Entity:    domain.Entity{ID: entity, Guild: "g1", Name: string(entity)},
		GuildName: "g1",
		Guild:     testGuildConfig(),
		Dest:      domain.Destination{Guild: "g1", Channel: "verify"},
		Messenger: fake,
		Events:    fake,
	})
}
