package credentials

import "testing"

func TestGenerateCode(t *testing.T) {
	tests := []struct {
		name       string
		iterations int
		length     int
		unique     bool
	}{
		{
			name:       "generates codes of correct length",
			iterations: 100,
			length:     CodeLength,
		},
		{
			name:       "generates unique codes",
			iterations: 50,
			length:     CodeLength,
			unique:     true,
		},
		{
			name:       "honours custom length",
			iterations: 10,
			length:     4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make(map[string]bool)
			for i := 0; i < tt.iterations; i++ {
				code, err := GenerateCode(tt.length)
				if err != nil {
					t.Fatalf("GenerateCode() error = %v", err)
				}
				if len(code) != tt.length {
					t.Errorf("code length %d, want %d", len(code), tt.length)
				}
				for _, c := range code {
					if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
						t.Errorf("code %q contains %q outside A-Z0-9", code, c)
					}
				}
				if tt.unique {
					if seen[code] {
						t.Errorf("duplicate code generated: %s", code)
					}
					seen[code] = true
				}
			}
		})
	}
}

func TestGenerateCodeRejectsBadLength(t *testing.T) {
	if _, err := GenerateCode(0); err == nil {
		t.Error("GenerateCode(0) should fail")
	}
}

func TestIsWellFormed(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"ABC1234XYZ", true},
		{"abc1234xyz", false},
		{"ABC1234XY", false},
		{"ABC1234XYZ0", false},
		{"ABC-234XYZ", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := IsWellFormed(tt.code); got != tt.want {
				t.Errorf("IsWellFormed(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}
