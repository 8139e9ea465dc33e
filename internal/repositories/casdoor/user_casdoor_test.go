package casdoor

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
)

type fakeSource struct {
	users map[string]*casdoorsdk.User
	calls int
}

func (f *fakeSource) GetUserByUserId(id string) (*casdoorsdk.User, error) {
	f.calls++
	if id == "broken" {
		return nil, errors.New("casdoor unavailable")
	}
	return f.users[id], nil
}

func TestMapRole(t *testing.T) {
	tests := []struct {
		name string
		want models.UserRole
	}{
		{"student", models.RoleStudent},
		{"Teacher", models.RoleLecturer},
		{"lecturer", models.RoleLecturer},
		{" instructor ", models.RoleLecturer},
		{"accountant", models.RoleAccountant},
		{"administrator", models.RoleAdmin},
		{"janitor", models.RoleStudent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapRole(tt.name))
		})
	}
}

func TestRoleOf(t *testing.T) {
	u := &casdoorsdk.User{Roles: []*casdoorsdk.Role{{Name: "student"}, {Name: "lecturer"}}}
	assert.Equal(t, models.RoleLecturer, RoleOf(u))

	u = &casdoorsdk.User{IsAdmin: true, Roles: []*casdoorsdk.Role{{Name: "student"}}}
	assert.Equal(t, models.RoleAdmin, RoleOf(u))

	assert.Equal(t, models.RoleStudent, RoleOf(&casdoorsdk.User{}))
	assert.Equal(t, models.RoleLecturer, RoleOf(&casdoorsdk.User{Type: "teacher"}))
}

func TestUserCasdoor_GetByIDUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	src := &fakeSource{users: map[string]*casdoorsdk.User{
		"u1": {Id: "u1", DisplayName: "Ada Banda", Email: "ada@example.edu"},
	}}
	repo := newUserCasdoor(src, client)
	ctx := context.Background()

	user, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Banda", user.FullName)
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.Nil(t, user.AvatarURL)

	again, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, user.Email, again.Email)
	assert.Equal(t, 1, src.calls)
	assert.True(t, mr.Exists("user:id:u1"))
}

func TestUserCasdoor_GetByIDsSkipsFailures(t *testing.T) {
	src := &fakeSource{users: map[string]*casdoorsdk.User{
		"u1": {Id: "u1", DisplayName: "Ada Banda"},
	}}
	repo := newUserCasdoor(src, nil)

	users, err := repo.GetByIDs(context.Background(), []string{"u1", "missing", "broken"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].ID)
}
