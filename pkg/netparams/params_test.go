package netparams

import (
	"reflect"
	"testing"
)

func TestCastDataType(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{"int", "8080", 8080},
		{"float", "1.5", 1.5},
		{"true", "true", true},
		{"TRUE", "TRUE", true},
		{"false", "False", false},
		{"plain string", "tcp", "tcp"},
		{"list of ints", "1,2,3", []any{1, 2, 3}},
		{"mixed list", "a,1,true", []any{"a", 1, true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := castDataType(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("castDataType(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParamsCaseInsensitive(t *testing.T) {
	p := New(map[string]string{"Method": "tcp", "PORT": "502"})

	if !p.Has("method") || !p.Has("METHOD") {
		t.Error("Has should be case-insensitive")
	}
	if got := p.String("method"); got != "tcp" {
		t.Errorf("String(method) = %q, want tcp", got)
	}
	if got := p.Int("port"); got != 502 {
		t.Errorf("Int(port) = %d, want 502", got)
	}
}

func TestParamsDefaults(t *testing.T) {
	p := New(map[string]string{})

	if got := p.StringDefault("host", "localhost"); got != "localhost" {
		t.Errorf("StringDefault = %q, want localhost", got)
	}
	if got := p.IntDefault("keepalive", 60); got != 60 {
		t.Errorf("IntDefault = %d, want 60", got)
	}
	if got := p.BoolDefault("retain", false); got != false {
		t.Errorf("BoolDefault = %v, want false", got)
	}
}

func TestRequireKeys(t *testing.T) {
	p := New(map[string]string{"host": "localhost"})

	missing := p.RequireKeys("host", "port", "timeout")
	want := []string{"port", "timeout"}
	if !reflect.DeepEqual(missing, want) {
		t.Errorf("RequireKeys = %v, want %v", missing, want)
	}
}
