package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestIdentifiersReuseBumpsGeneration(t *testing.T) {
	ids := NewIdentifiers(4)

	a := ids.Acquire()
	b := ids.Acquire()
	if a == InvalidID || b == InvalidID {
		t.Fatalf("acquired invalid id: %v %v", a, b)
	}
	if a.Index() == b.Index() {
		t.Fatalf("distinct ids share index %d", a.Index())
	}

	if err := ids.Release(a); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ids.Alive(a) {
		t.Fatal("released id still alive")
	}

	c := ids.Acquire()
	if c.Index() != a.Index() {
		t.Fatalf("expected slot %d to be reused, got %d", a.Index(), c.Index())
	}
	if c.Generation() == a.Generation() {
		t.Fatal("reused slot kept its generation")
	}
	if ids.Alive(a) {
		t.Fatal("old id became alive again after reuse")
	}
	if !ids.Alive(c) {
		t.Fatal("new id not alive")
	}

	if err := ids.Release(a); !errors.Is(err, ErrStaleHandle) {
		t.Fatalf("double release: got %v, want ErrStaleHandle", err)
	}
	if got := ids.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindUnknown},
		{ErrSurfaceLost, KindTransient},
		{fmt.Errorf("acquire: %w", ErrAcquireTimeout), KindTransient},
		{fmt.Errorf("submit: %w", ErrStaleTarget), KindTransient},
		{ErrOutOfAtlasSpace, KindExhaustion},
		{ErrAudioQueueFull, KindExhaustion},
		{fmt.Errorf("draw 3: %w", ErrStaleHandle), KindStaleReference},
		{fmt.Errorf("present: %w", ErrDeviceLost), KindFatal},
		{fmt.Errorf("%w: %w", ErrSurfaceLost, ErrDeviceLost), KindFatal},
		{ErrUnsupportedFormat, KindInvalid},
		{errors.New("something else"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMetricsFPS(t *testing.T) {
	m := NewMetrics()
	// 61 frames of ~16.67ms cross the one second mark once.
	for i := 0; i < 61; i++ {
		m.Update(1.0 / 60.0)
	}
	if m.FPS() < 59 || m.FPS() > 61 {
		t.Fatalf("FPS = %v, want about 60", m.FPS())
	}
	if ft := m.FrameTime(); ft < 16 || ft > 17 {
		t.Fatalf("FrameTime = %v, want about 16.67", ft)
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"debug": DebugLevel,
		"INFO":  InfoLevel,
		"warn":  WarnLevel,
		"error": ErrorLevel,
		"":      InfoLevel,
	} {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLogLevel("loud"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
