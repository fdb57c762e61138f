package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		name       string
		version    int
		wantReason string
		wantMsg    string
	}{
		{name: "current", version: CurrentVersion},
		{name: "zero", version: 0, wantReason: "missing or outdated", wantMsg: "update the version key"},
		{name: "negative", version: -1, wantReason: "missing or outdated", wantMsg: "update the version key"},
		{name: "newer", version: CurrentVersion + 1, wantReason: "newer than this build", wantMsg: "upgrade qaeval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVersion(tt.version)
			if tt.wantReason == "" {
				if err != nil {
					t.Fatalf("ValidateVersion(%d) = %v, want nil", tt.version, err)
				}
				return
			}
			var ve *VersionError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *VersionError, got %T", err)
			}
			if ve.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", ve.Reason, tt.wantReason)
			}
			if !strings.Contains(ve.Error(), tt.wantMsg) {
				t.Errorf("Error() = %q, want substring %q", ve.Error(), tt.wantMsg)
			}
		})
	}
}

func TestVersionErrorMessages(t *testing.T) {
	var nilErr *VersionError
	if got := nilErr.Error(); got != "" {
		t.Errorf("nil VersionError = %q, want empty", got)
	}
	if got := (&VersionError{Version: 0, Current: 1}).Error(); !strings.Contains(got, "unsupported") {
		t.Errorf("empty reason message = %q", got)
	}
}
