package middleware

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health/live", "/health/live"},
		{"/metrics", "/metrics"},
		{"/api/v1/service-accounts", "/api/v1/service-accounts"},
		{
			"/api/v1/service-accounts/a1b2c3d4-e5f6-7890-abcd-ef1234567890",
			"/api/v1/service-accounts/{id}",
		},
		{
			"/api/v1/service-accounts/a1b2c3d4-e5f6-7890-abcd-ef1234567890/token",
			"/api/v1/service-accounts/{id}/token",
		},
		{"/api/v1/uploader-identities", "/api/v1/uploader-identities"},
		{"/api/v1/uploader-identities/MyTeam", "/api/v1/uploader-identities/{name}"},
		{
			"/api/v1/uploader-identities/MyTeam/members",
			"/api/v1/uploader-identities/{name}/members",
		},
		{"/api/cyberstorm/community/", "/api/cyberstorm/community/"},
		{
			"/api/cyberstorm/community/riskofrain2/",
			"/api/cyberstorm/community/{community_id}/",
		},
		{"/api/experimental/current-user/", "/api/experimental/current-user/"},
		{"/unknown/path", "/unknown/path"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, ожидалось %q", tt.path, got, tt.want)
			}
		})
	}
}
