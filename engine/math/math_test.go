package math

import "testing"

func TestAffineTRS(t *testing.T) {
	tests := []struct {
		name     string
		tr       Affine2D
		in, want Vec2
	}{
		{
			name: "translate scale",
			tr:   NewAffineTRS(NewVec2(10, 20), 0, NewVec2(64, 32), Vec2{}),
			in:   NewVec2(1, 1),
			want: NewVec2(74, 52),
		},
		{
			name: "centred origin",
			tr:   NewAffineTRS(NewVec2(100, 100), 0, NewVec2(64, 64), NewVec2(0.5, 0.5)),
			in:   NewVec2(0, 0),
			want: NewVec2(68, 68),
		},
		{
			name: "quarter turn",
			tr:   NewAffineTRS(Vec2{}, K_HALF_PI, NewVec2(10, 10), Vec2{}),
			in:   NewVec2(1, 0),
			want: NewVec2(0, 10),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.tr.Apply(tt.in)
			if !got.Compare(tt.want, 1e-3) {
				t.Fatalf("Apply(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAffineMul(t *testing.T) {
	move := NewAffineTRS(NewVec2(5, 0), 0, NewVec2One(), Vec2{})
	grow := NewAffineTRS(Vec2{}, 0, NewVec2(2, 2), Vec2{})
	got := move.Mul(grow).Apply(NewVec2(1, 1))
	if !got.Compare(NewVec2(7, 2), 1e-5) {
		t.Fatalf("got %v", got)
	}
	if id := NewAffineIdentity().Mul(move); id != move {
		t.Fatalf("identity product changed transform: %v", id)
	}
}

func TestURectIntersects(t *testing.T) {
	a := URect{X: 0, Y: 0, W: 64, H: 64}
	if a.Intersects(URect{X: 64, Y: 0, W: 32, H: 32}) {
		t.Fatal("touching rects must not intersect")
	}
	if !a.Intersects(URect{X: 63, Y: 63, W: 2, H: 2}) {
		t.Fatal("overlapping corner not detected")
	}
	if a.Intersects(URect{X: 10, Y: 10}) {
		t.Fatal("empty rect intersects")
	}
	if !a.Contains(URect{X: 10, Y: 10, W: 54, H: 54}) {
		t.Fatal("inner rect not contained")
	}
}

func TestClampAndRandomRange(t *testing.T) {
	if Clamp(5, 0, 3) != 3 || Clamp(-1.5, 0, 1) != 0 || Clamp(uint8(7), 1, 9) != 7 {
		t.Fatal("Clamp")
	}
	Seed(42)
	for i := 0; i < 200; i++ {
		v := RandomInRange(-20, 20)
		if v < -20 || v > 20 {
			t.Fatalf("RandomInRange out of bounds: %d", v)
		}
		f := FRandomInRange(1, 2)
		if f < 1 || f >= 2 {
			t.Fatalf("FRandomInRange out of bounds: %v", f)
		}
	}
}
