package roles_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/predeactor/captchad/internal/domain"
	"github.com/predeactor/captchad/internal/gateway"
	"github.com/predeactor/captchad/internal/roles"
)

func TestApplier_ApplySuccess(t *testing.T) {
	type (
		inputs struct {
			cfg      domain.GuildConfig
			heldTemp bool
			failing  []domain.RoleID
		}

		outputs struct {
			summary roles.ActionSummary
			fake    *gateway.Fake
		}
	)

	entity := domain.Entity{ID: "u1", Guild: "g1", Name: "newcomer"}

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"grants every autorole and revokes a held temp role": {
			arrange: func() inputs {
				return inputs{
					cfg: domain.GuildConfig{
						Guild:     "g1",
						Autoroles: []domain.RoleID{"member", "chatter"},
						TempRole:  "unverified",
					},
					heldTemp: true,
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.ElementsMatch(t, []domain.RoleID{"member", "chatter"}, out.summary.Granted)
				require.True(t, out.summary.Revoked)
				require.Empty(t, out.summary.Failures)
				require.Len(t, out.fake.Revokes(), 1)
			},
		},

		"skips revoke when the temp role is not held": {
			arrange: func() inputs {
				return inputs{
					cfg: domain.GuildConfig{
						Guild:    "g1",
						TempRole: "unverified",
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.False(t, out.summary.Revoked)
				require.Empty(t, out.fake.Revokes())
				require.Equal(t, "No action taken.", out.summary.String())
			},
		},

		"a failed grant does not stop the remaining grants": {
			arrange: func() inputs {
				return inputs{
					cfg: domain.GuildConfig{
						Guild:     "g1",
						Autoroles: []domain.RoleID{"vanished", "member"},
					},
					failing: []domain.RoleID{"vanished"},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.Equal(t, []domain.RoleID{"member"}, out.summary.Granted)
				require.Len(t, out.summary.Failures, 1)
				require.Equal(t, domain.RoleID("vanished"), out.summary.Failures[0].Role)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()

			fake := gateway.NewFake()
			if in.heldTemp {
				require.NoError(t, fake.Grant(context.Background(), entity, in.cfg.TempRole, "setup"))
			}
			fake.FailRoles = make(map[domain.RoleID]bool)
			for _, r := range in.failing {
				fake.FailRoles[r] = true
			}

			a := roles.NewApplier(roles.Config{Roles: fake})
			summary := a.ApplySuccess(context.Background(), entity, in.cfg)

			tt.assert(t, outputs{summary: summary, fake: fake})
		})
	}
}
