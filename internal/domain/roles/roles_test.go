package roles

import "testing"

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{RoleOwner, true},
		{RoleMember, true},
		{"admin", false},
		{"", false},
		{"Owner", false},
	}

	for _, tt := range tests {
		if got := IsValidRole(tt.role); got != tt.want {
			t.Errorf("IsValidRole(%q) = %v, хотели %v", tt.role, got, tt.want)
		}
	}
}

func TestCanManageServiceAccounts(t *testing.T) {
	if !CanManageServiceAccounts(RoleOwner) {
		t.Error("owner должен управлять сервисными аккаунтами")
	}
	if CanManageServiceAccounts(RoleMember) {
		t.Error("member не должен управлять сервисными аккаунтами")
	}
	if CanManageServiceAccounts("") {
		t.Error("пустая роль не должна управлять сервисными аккаунтами")
	}
}

func TestHighestRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  string
	}{
		{"пустой набор", nil, ""},
		{"только member", []string{RoleMember}, RoleMember},
		{"member и owner", []string{RoleMember, RoleOwner}, RoleOwner},
		{"owner и member", []string{RoleOwner, RoleMember}, RoleOwner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HighestRole(tt.roles); got != tt.want {
				t.Errorf("HighestRole(%v) = %q, хотели %q", tt.roles, got, tt.want)
			}
		})
	}
}
