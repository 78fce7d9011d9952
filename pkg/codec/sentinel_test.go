package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestSentinelEncodeDecodeRoundTrip(t *testing.T) {
	s := NewSentinel()
	payload := []byte("hello")

	frame := s.Encode(payload)
	if !bytes.Equal(frame, []byte("$hello$")) {
		t.Fatalf("Encode = %q, want %q", frame, "$hello$")
	}

	got, err := s.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Decode = %q, want %q", got, payload)
	}
}

func TestSentinelDecodeRejectsTampering(t *testing.T) {
	s := NewSentinel()

	tests := []struct {
		name  string
		frame []byte
	}{
		{"no head", []byte("hello$")},
		{"no tail", []byte("$hello")},
		{"too short", []byte("$")},
		{"forbidden pair in payload", []byte("$he$$lo$")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Decode(tt.frame); err == nil {
				t.Error("Decode succeeded, want error")
			} else if !errors.Is(err, ErrFraming) {
				t.Errorf("err = %v, want ErrFraming", err)
			}
		})
	}
}

func TestSentinelIsFramed(t *testing.T) {
	s := NewSentinel()
	if !s.IsFramed([]byte("$ok$")) {
		t.Error("IsFramed(valid) = false, want true")
	}
	if s.IsFramed([]byte("not framed")) {
		t.Error("IsFramed(invalid) = true, want false")
	}
}

func TestSentinelSplit(t *testing.T) {
	s := NewSentinel()

	tests := []struct {
		name   string
		stream string
		want   []string
	}{
		{"three frames", "$ab$cd$ef$", []string{"$ab$", "$cd$", "$ef$"}},
		{"leading garbage discarded", "garbage$ab$", []string{"$ab$"}},
		{"trailing incomplete fragment discarded", "$garbage", nil},
		{"single complete frame", "$ab$", []string{"$ab$"}},
		{"empty middle spans skipped", "$$ab$", []string{"$ab$"}},
		{"no sentinel at all", "nothing here", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Split([]byte(tt.stream))
			if len(got) != len(tt.want) {
				t.Fatalf("Split(%q) = %d frames, want %d (%v)", tt.stream, len(got), len(tt.want), got)
			}
			for i, w := range tt.want {
				if !bytes.Equal(got[i], []byte(w)) {
					t.Errorf("Split(%q)[%d] = %q, want %q", tt.stream, i, got[i], w)
				}
			}
		})
	}
}
