package stt

import (
	"errors"
	"testing"
)

func TestClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: "  สวัสดี \n", want: "สวัสดี"},
		{in: "one coffee", want: "one coffee"},
		{in: "", wantErr: ErrNotRecognized},
		{in: " \t\n", wantErr: ErrNotRecognized},
	}
	for _, tc := range tests {
		got, err := Clean(tc.in)
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("Clean(%q) err = %v, want %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBaseLanguage(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"th-TH": "th",
		"en_US": "en",
		"DE":    "de",
		"":      "",
	}
	for in, want := range tests {
		if got := BaseLanguage(in); got != want {
			t.Errorf("BaseLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}
