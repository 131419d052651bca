package resilience

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email   string
		wantErr bool
	}{
		{"user@example.com", false},
		{"a@b", false},
		{"invalid-email", true},
		{"", true},
	}

	for _, tt := range tests {
		err := ValidateEmail("email", tt.email)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
		}
		if err != nil && KindOf(err) != KindValidation {
			t.Errorf("ValidateEmail(%q) kind = %s, want validation", tt.email, KindOf(err))
		}
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"ok", "Newsletter", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"at limit", strings.Repeat("a", MaxListNameLength), false},
		{"over limit", strings.Repeat("a", MaxListNameLength+1), true},
		{"multibyte at limit", strings.Repeat("ñ", MaxListNameLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName("list_name", tt.value, MaxListNameLength)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateIDs(t *testing.T) {
	tests := []struct {
		name    string
		ids     []int
		wantErr bool
	}{
		{"single", []int{1}, false},
		{"many", []int{1, 2, 3}, false},
		{"empty", nil, true},
		{"zero member", []int{1, 0}, true},
		{"negative member", []int{-4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIDs("list_ids", tt.ids)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIDs(%v) error = %v, wantErr %v", tt.ids, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	if err := ValidateID("list_id", 12); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateID("list_id", 0); err == nil {
		t.Error("expected error for zero id")
	}
	if err := ValidateID("list_id", -1); err == nil {
		t.Error("expected error for negative id")
	}
}

func TestFirstError(t *testing.T) {
	second := ValidateRequired("subject", "")
	if got := FirstError(nil, second, ValidateRequired("content", "")); got != second {
		t.Errorf("FirstError returned %v, want %v", got, second)
	}
	if FirstError(nil, nil) != nil {
		t.Error("expected nil")
	}
}
