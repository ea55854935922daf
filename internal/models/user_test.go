package models

import "testing"

func TestDisplayName(t *testing.T) {
	tests := []struct {
		user User
		want string
	}{
		{User{Name: "James Hetfield"}, "James H."},
		{User{Name: "  Kerry   King "}, "Kerry K."},
		{User{Name: "Dimebag"}, "Dimebag"},
		{User{Name: "Zakk Wylde Ö"}, "Zakk Ö."},
		{User{Username: "riffer0042"}, "riffer0042"},
		{User{}, "Player"},
	}
	for _, tt := range tests {
		if got := tt.user.DisplayName(); got != tt.want {
			t.Errorf("DisplayName(%+v) = %q, want %q", tt.user, got, tt.want)
		}
	}
}
