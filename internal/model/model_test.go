package model

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{"already normalized", "+9647501234567", "+9647501234567"},
		{"country code without plus", "9647501234567", "+9647501234567"},
		{"leading zero", "07501234567", "+9647501234567"},
		{"bare subscriber number", "7501234567", "+9647501234567"},
		{"spaces stripped", "0750 123 4567", "+9647501234567"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePhone(tt.phone); got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.phone, got, tt.want)
			}
		})
	}
}
