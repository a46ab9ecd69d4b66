package mathx

import "testing"

func TestClamp(t *testing.T) {
	if Clamp(5, 0, 3) != 3 || Clamp(-1, 0, 3) != 0 || Clamp(2, 3, 0) != 2 {
		t.Fatal("Clamp")
	}
	if got := ClampInt[uint16](70000, 0, 0xFFFF); got != 0xFFFF {
		t.Fatalf("ClampInt = %d", got)
	}
	if !Between(2, 3, 1) || Between(4, 1, 3) {
		t.Fatal("Between")
	}
}

func TestPercentToLevel(t *testing.T) {
	cases := map[uint8]uint8{0: 0, 50: 128, 100: 255, 150: 255, 1: 3}
	for in, want := range cases {
		if got := PercentToLevel(in); got != want {
			t.Fatalf("PercentToLevel(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestScale8(t *testing.T) {
	if Scale8(200, 255) != 200 || Scale8(200, 0) != 0 || Scale8(255, 128) != 128 {
		t.Fatal("Scale8")
	}
}

func TestLerp8(t *testing.T) {
	if Lerp8(0, 200, 1, 2) != 100 {
		t.Fatal("midpoint")
	}
	if Lerp8(200, 0, 1, 4) != 150 {
		t.Fatal("descending")
	}
	if Lerp8(10, 20, 5, 0) != 20 || Lerp8(10, 20, -1, 4) != 10 {
		t.Fatal("edges")
	}
}
