package crc

import "testing"

func TestCombineMatchesDirectChecksum(t *testing.T) {
	a := []byte("the quick brown fox ")
	b := []byte("jumps over the lazy dog")

	want := Checksum(append(append([]byte{}, a...), b...))
	got := Combine(Checksum(a), Checksum(b), int64(len(b)))
	if got != want {
		t.Fatalf("Combine = %#x, want %#x", got, want)
	}
}

func TestCombineWithZeroLengthSecond(t *testing.T) {
	a := []byte("span-body")
	if got := Combine(Checksum(a), 0xFFFFFFFF, 0); got != Checksum(a) {
		t.Fatalf("Combine with len2=0 should return crc1 unchanged, got %#x", got)
	}
}

func TestExtendZerosMatchesDirectChecksum(t *testing.T) {
	a := []byte("prefix-bytes")
	zeros := make([]byte, 5000)
	want := Checksum(append(append([]byte{}, a...), zeros...))
	got := ExtendZeros(Checksum(a), int64(len(zeros)))
	if got != want {
		t.Fatalf("ExtendZeros = %#x, want %#x", got, want)
	}
}

func TestXORSelfInverse(t *testing.T) {
	a := Checksum([]byte("data-block-crc"))
	b := Checksum([]byte("parity-block-crc"))
	if XOR(XOR(a, b), b) != a {
		t.Fatalf("XOR is not self-inverse")
	}
}
