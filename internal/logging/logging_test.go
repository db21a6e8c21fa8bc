package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

type slotName string

func (s slotName) String() string { return string(s) }

func TestSlotLoggerAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: "debug", Format: "text", Output: &buf})

	ctx, l := WithSlotLogger(context.Background(), base, slotName("12.3"), 1)
	l.Info(ctx, "scheduled", RNTI(0x4601), Bool("retx", false))

	out := buf.String()
	for _, want := range []string{"slot=12.3", "cc=1", "rnti=0x4601", "retx=false"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line %q missing %q", out, want)
		}
	}
	if FromContextOr(ctx, nil) != l {
		t.Fatalf("expected the slot logger on the context")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "json", Output: &buf})
	l.Info(context.Background(), "dropped")
	l.Warn(context.Background(), "kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestRequestLogger(t *testing.T) {
	ctx, _ := WithRequestLogger(context.Background(), nil)
	if RequestIDFromContext(ctx) == "" {
		t.Fatalf("expected a request id")
	}
	if FromContextOr(context.Background(), nil) == nil {
		t.Fatalf("FromContextOr must never return nil")
	}
}
