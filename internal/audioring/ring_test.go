package audioring

import "testing"

func seq(n int, start float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = start + float32(i)
	}
	return out
}

func TestNewRaisesSmallCapacity(t *testing.T) {
	r := New(10)
	if r.Capacity() != MinCapacitySamples {
		t.Fatalf("Capacity() = %d, want %d (raised to minimum)", r.Capacity(), MinCapacitySamples)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	r := newRaw(16)
	in := seq(6, 0)
	n := r.Write(in)
	if n != 6 {
		t.Fatalf("Write() = %d, want 6", n)
	}
	if r.Available() != 6 {
		t.Fatalf("Available() = %d, want 6", r.Available())
	}

	dst := make([]float32, 4)
	got := r.ReadInto(dst)
	if got != 4 {
		t.Fatalf("ReadInto() = %d, want 4", got)
	}
	for i, v := range dst {
		if v != in[i] {
			t.Fatalf("dst[%d] = %v, want %v", i, v, in[i])
		}
	}
	if r.Available() != 2 {
		t.Fatalf("Available() after read = %d, want 2", r.Available())
	}
}

func TestWriteDropsExcessWhenFull(t *testing.T) {
	r := newRaw(8)
	n := r.Write(seq(8, 0))
	if n != 8 {
		t.Fatalf("Write() = %d, want 8", n)
	}
	// VOD policy: writes only while available < capacity; excess is dropped.
	n = r.Write(seq(4, 100))
	if n != 0 {
		t.Fatalf("Write() into a full ring = %d, want 0", n)
	}
	if r.Available() != 8 {
		t.Fatalf("Available() = %d, want 8 (unchanged)", r.Available())
	}
}

func TestWriteDroppingOldestOverwritesOldest(t *testing.T) {
	r := newRaw(8)
	r.Write(seq(8, 0)) // ring now holds 0..7

	r.WriteDroppingOldest(seq(4, 100)) // should drop 0,1,2,3 to make room

	if r.Available() != 8 {
		t.Fatalf("Available() = %d, want 8", r.Available())
	}
	dst := make([]float32, 8)
	r.ReadInto(dst)
	want := []float32{4, 5, 6, 7, 100, 101, 102, 103}
	for i, v := range dst {
		if v != want[i] {
			t.Fatalf("dst[%d] = %v, want %v (full readout %v)", i, v, want[i], dst)
		}
	}
}

func TestWriteDroppingOldestLargerThanCapacity(t *testing.T) {
	r := newRaw(4)
	r.WriteDroppingOldest(seq(10, 0)) // only the tail (6..9) can ever fit
	if r.Available() != 4 {
		t.Fatalf("Available() = %d, want 4", r.Available())
	}
	dst := make([]float32, 4)
	r.ReadInto(dst)
	want := []float32{6, 7, 8, 9}
	for i, v := range dst {
		if v != want[i] {
			t.Fatalf("dst[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestReadIntoShortRead(t *testing.T) {
	r := newRaw(8)
	r.Write(seq(3, 0))
	dst := make([]float32, 8)
	got := r.ReadInto(dst)
	if got != 3 {
		t.Fatalf("ReadInto() = %d, want 3 (short read)", got)
	}
	if r.Available() != 0 {
		t.Fatalf("Available() = %d, want 0", r.Available())
	}
}

func TestFillFraction(t *testing.T) {
	r := newRaw(8)
	r.Write(seq(6, 0))
	if got, want := r.FillFraction(), 0.75; got != want {
		t.Fatalf("FillFraction() = %v, want %v", got, want)
	}
}

func TestClearResetsAvailability(t *testing.T) {
	r := newRaw(8)
	r.Write(seq(8, 0))
	r.Clear()
	if r.Available() != 0 {
		t.Fatalf("Available() after Clear = %d, want 0", r.Available())
	}
	n := r.Write(seq(8, 0))
	if n != 8 {
		t.Fatalf("Write() after Clear = %d, want 8", n)
	}
}

func TestInvariantAvailableBounded(t *testing.T) {
	r := newRaw(8)
	for i := 0; i < 100; i++ {
		r.WriteDroppingOldest(seq(3, float32(i)))
		if r.Available() < 0 || r.Available() > r.Capacity() {
			t.Fatalf("Available() = %d out of bounds [0,%d]", r.Available(), r.Capacity())
		}
	}
}
