package audio

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/spaghettifunk/anima2d/engine/core"
)

func names(cues []Cue) []string {
	out := make([]string, len(cues))
	for i, c := range cues {
		out[i] = c.Name
	}
	return out
}

func newDispatcher(t *testing.T, capacity int) (*Dispatcher, *RecordingMixer) {
	t.Helper()
	m := &RecordingMixer{}
	d, err := NewDispatcher(m, capacity)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d, m
}

func TestSubmitAssignsInstanceIDs(t *testing.T) {
	d, m := newDispatcher(t, 4)
	a, err := d.Submit(Cue{Name: "shot"})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := d.Submit(Cue{Name: "shot"})
	if a == "" || a == b {
		t.Fatalf("instance ids %q %q", a, b)
	}
	d.Pump()
	played := m.Played()
	if len(played) != 2 || played[0].InstanceID != a || played[1].InstanceID != b {
		t.Fatalf("played = %+v", played)
	}
}

func TestOverflowDropsOldestNonLooping(t *testing.T) {
	tests := []struct {
		name    string
		queued  []Cue
		want    []string
		dropped uint64
	}{
		{
			name:    "plain cues",
			queued:  []Cue{{Name: "a"}, {Name: "b"}, {Name: "c"}},
			want:    []string{"b", "c", "new"},
			dropped: 1,
		},
		{
			name:    "looping head is kept",
			queued:  []Cue{{Name: "music", Loop: true}, {Name: "b"}, {Name: "c"}},
			want:    []string{"music", "c", "new"},
			dropped: 1,
		},
		{
			name:    "only the last cue can go",
			queued:  []Cue{{Name: "m1", Loop: true}, {Name: "m2", Loop: true}, {Name: "c"}},
			want:    []string{"m1", "m2", "new"},
			dropped: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, m := newDispatcher(t, 3)
			for _, c := range tt.queued {
				if _, err := d.Submit(c); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := d.Submit(Cue{Name: "new"}); err != nil {
				t.Fatalf("submit into full queue: %v", err)
			}
			if d.Pending() != 3 {
				t.Fatalf("pending = %d, bound is 3", d.Pending())
			}
			if st := d.Stats(); st.Dropped != tt.dropped {
				t.Fatalf("dropped = %d, want %d", st.Dropped, tt.dropped)
			}
			d.Pump()
			got := names(m.Played())
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Fatalf("played %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueueOfLoopsRejectsNewCue(t *testing.T) {
	d, _ := newDispatcher(t, 2)
	d.Submit(Cue{Name: "m1", Loop: true})
	d.Submit(Cue{Name: "m2", Loop: true})
	_, err := d.Submit(Cue{Name: "shot"})
	if !errors.Is(err, core.ErrAudioQueueFull) || core.KindOf(err) != core.KindExhaustion {
		t.Fatalf("err = %v, want ErrAudioQueueFull", err)
	}
	if d.Pending() != 2 || d.Stats().Dropped != 0 {
		t.Fatalf("queue changed on rejection: pending %d stats %+v", d.Pending(), d.Stats())
	}
}

func TestQueueNeverExceedsBound(t *testing.T) {
	d, _ := newDispatcher(t, 8)
	for i := 0; i < 1000; i++ {
		d.Submit(Cue{Name: fmt.Sprintf("c%d", i), Loop: i%7 == 0})
		if d.Pending() > 8 {
			t.Fatalf("pending = %d after %d submits", d.Pending(), i+1)
		}
	}
}

func TestSubmitDoesNotWaitForMixer(t *testing.T) {
	m := &RecordingMixer{Hold: make(chan struct{})}
	d, err := NewDispatcher(m, 4)
	if err != nil {
		t.Fatal(err)
	}
	d.Start()

	// the mixer goroutine blocks inside Play on the first cue
	d.Submit(Cue{Name: "first"})
	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			d.Submit(Cue{Name: "storm"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submit blocked on a busy mixer")
	}
	close(m.Hold)
	d.Close()
	if d.Pending() != 0 {
		t.Fatalf("pending after close = %d", d.Pending())
	}
}

func TestMixerGoroutinePlaysCues(t *testing.T) {
	m := &RecordingMixer{}
	d, err := NewDispatcher(m, 4)
	if err != nil {
		t.Fatal(err)
	}
	d.Start()
	d.Submit(Cue{Name: "hit"})
	deadline := time.Now().Add(2 * time.Second)
	for len(m.Played()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("cue never reached the mixer")
		}
		time.Sleep(time.Millisecond)
	}
	d.Close()
}

func TestBindingsAndStop(t *testing.T) {
	d, m := newDispatcher(t, 4)
	d.Bind("enemy.hit", Cue{Name: "explosion", Volume: 0.8})
	if err := d.Trigger("enemy.hit"); err != nil {
		t.Fatal(err)
	}
	if err := d.Trigger("nobody.listens"); err != nil {
		t.Fatalf("unbound event: %v", err)
	}
	d.Stop("music")
	d.Pump()
	played := m.Played()
	if len(played) != 1 || played[0].Name != "explosion" || played[0].Volume != 0.8 {
		t.Fatalf("played = %+v", played)
	}
	if s := m.Stopped(); len(s) != 1 || s[0] != "music" {
		t.Fatalf("stopped = %v", s)
	}
}

func TestCloseDropsPendingCues(t *testing.T) {
	d, m := newDispatcher(t, 4)
	d.Submit(Cue{Name: "a"})
	d.Submit(Cue{Name: "b"})
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if st := d.Stats(); st.Dropped != 2 {
		t.Fatalf("stats = %+v", st)
	}
	if _, err := d.Submit(Cue{Name: "late"}); !errors.Is(err, core.ErrClosed) {
		t.Fatalf("submit after close: %v", err)
	}
	d.Pump()
	if len(m.Played()) != 0 {
		t.Fatal("cues delivered after shutdown")
	}
}

func TestStopInstance(t *testing.T) {
	d, m := newDispatcher(t, 4)
	first, _ := d.Submit(Cue{Name: "engine", Loop: true})
	second, _ := d.Submit(Cue{Name: "engine", Loop: true})
	d.Pump()

	if err := d.StopInstance(first); err != nil {
		t.Fatal(err)
	}
	d.Pump()
	if ids := m.StoppedInstances(); len(ids) != 1 || ids[0] != first {
		t.Fatalf("stopped instances = %v, want [%s]", ids, first)
	}
	if len(m.Stopped()) != 0 {
		t.Fatalf("stop by name issued: %v", m.Stopped())
	}
	if second == first {
		t.Fatal("both cues share an id")
	}
}

func TestStopInstanceRemovesQueuedCue(t *testing.T) {
	d, m := newDispatcher(t, 4)
	keep, _ := d.Submit(Cue{Name: "a"})
	drop, _ := d.Submit(Cue{Name: "b"})
	if err := d.StopInstance(drop); err != nil {
		t.Fatal(err)
	}
	d.Pump()
	played := m.Played()
	if len(played) != 1 || played[0].InstanceID != keep {
		t.Fatalf("played = %+v", played)
	}
	if len(m.StoppedInstances()) != 0 {
		t.Fatal("queued cue reached the mixer as a stop")
	}
}
