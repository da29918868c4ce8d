package main

import (
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/focusflow/focusflow-go/pkg/chat"
)

func envMap(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestParseAppConfig(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		want    appConfig
		wantErr bool
	}{
		{
			name: "defaults with gemini key",
			env:  map[string]string{"GEMINI_API_KEY": "k1"},
			want: appConfig{APIKey: "k1", AskTimeout: defaultAskTimeout},
		},
		{
			name: "google key fallback",
			env:  map[string]string{"GOOGLE_API_KEY": "k2"},
			want: appConfig{APIKey: "k2", AskTimeout: defaultAskTimeout},
		},
		{
			name: "gemini key wins over google",
			env:  map[string]string{"GEMINI_API_KEY": "k1", "GOOGLE_API_KEY": "k2"},
			want: appConfig{APIKey: "k1", AskTimeout: defaultAskTimeout},
		},
		{
			name: "flags and database url",
			args: []string{"-timeout", "30s", "-debug"},
			env:  map[string]string{"GEMINI_API_KEY": "k1", "FOCUSFLOW_DATABASE_URL": "postgres://localhost/focusflow"},
			want: appConfig{
				APIKey:      "k1",
				DatabaseURL: "postgres://localhost/focusflow",
				AskTimeout:  30 * time.Second,
				Debug:       true,
			},
		},
		{
			name:    "missing api key",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name:    "non-positive timeout",
			args:    []string{"-timeout", "-1s"},
			env:     map[string]string{"GEMINI_API_KEY": "k1"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parseAppConfig(tt.args, envMap(tt.env))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAppConfig error: %v", err)
			}
			if cfg != tt.want {
				t.Errorf("config = %+v, want %+v", cfg, tt.want)
			}
		})
	}
}

func TestComposerBuffer_TakeClears(t *testing.T) {
	c := &composerBuffer{}
	c.append("note to ")
	c.append("self")

	if got := c.take(); got != "note to self" {
		t.Errorf("take() = %q, want %q", got, "note to self")
	}
	if got := c.take(); got != "" {
		t.Errorf("take() after take = %q, want empty", got)
	}
}

func TestSamplesFromBytes(t *testing.T) {
	want := []float32{0, 0.5, -1.0}
	pcm := make([]byte, len(want)*4)
	for i, sample := range want {
		binary.LittleEndian.PutUint32(pcm[i*4:], math.Float32bits(sample))
	}

	got := samplesFromBytes(pcm)
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestArchivingSink_WithoutStore(t *testing.T) {
	log := chat.NewLog()
	sink := &archivingSink{log: log, errOut: io.Discard}

	sink.Append(chat.Message{ID: "m1", Role: chat.RoleUser, Content: "draft"})
	sink.UpdateByID("m1", "final", []byte{1, 2})

	msg, ok := log.Get("m1")
	if !ok {
		t.Fatal("message not in log")
	}
	if msg.Content != "final" || len(msg.Audio) != 2 {
		t.Errorf("message = %+v", msg)
	}
}
