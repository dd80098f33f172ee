package codec

import (
	"bytes"
	"testing"
)

func TestScalarRoundTrip(t *testing.T) {
	w := NewWriter(0)
	w.PutUint8(0xAB)
	w.PutUint16(0x1234)
	w.PutUint32(0xDEADBEEF)
	w.PutUint64(0x0102030405060708)
	w.PutInt64(-1)

	r := NewReader(w.Bytes())
	u8, err := r.GetUint8()
	if err != nil || u8 != 0xAB {
		t.Fatalf("GetUint8 = %v, %v", u8, err)
	}
	u16, err := r.GetUint16()
	if err != nil || u16 != 0x1234 {
		t.Fatalf("GetUint16 = %v, %v", u16, err)
	}
	u32, err := r.GetUint32()
	if err != nil || u32 != 0xDEADBEEF {
		t.Fatalf("GetUint32 = %v, %v", u32, err)
	}
	u64, err := r.GetUint64()
	if err != nil || u64 != 0x0102030405060708 {
		t.Fatalf("GetUint64 = %v, %v", u64, err)
	}
	i64, err := r.GetInt64()
	if err != nil || i64 != -1 {
		t.Fatalf("GetInt64 = %v, %v", i64, err)
	}
}

func TestScalarsAreLittleEndian(t *testing.T) {
	w := NewWriter(0)
	w.PutUint32(0x01020304)
	if got, want := w.Bytes(), []byte{0x04, 0x03, 0x02, 0x01}; !bytes.Equal(got, want) {
		t.Fatalf("PutUint32 wire bytes = %x, want %x", got, want)
	}
}

func TestFixed(t *testing.T) {
	w := NewWriter(0)
	w.PutFixed([]byte{1, 2, 3})
	w.PutUint8(9)

	r := NewReader(w.Bytes())
	b, err := r.GetFixed(3)
	if err != nil || !bytes.Equal(b, []byte{1, 2, 3}) {
		t.Fatalf("GetFixed = %v, %v", b, err)
	}
	trailing, err := r.GetUint8()
	if err != nil || trailing != 9 {
		t.Fatalf("trailing byte = %v, %v", trailing, err)
	}
}

func TestListHeaderRoundTrip(t *testing.T) {
	w := NewWriter(0)
	if err := w.PutListHeader(3); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		w.PutUint64(uint64(i))
	}

	r := NewReader(w.Bytes())
	n, err := r.GetListHeader()
	if err != nil || n != 3 {
		t.Fatalf("GetListHeader = %v, %v", n, err)
	}
	for i := 0; i < n; i++ {
		v, err := r.GetUint64()
		if err != nil || v != uint64(i) {
			t.Fatalf("element %d = %v, %v", i, v, err)
		}
	}
}

func TestShortStringRoundTrip(t *testing.T) {
	w := NewWriter(0)
	if err := w.PutShortString("hello.txt"); err != nil {
		t.Fatal(err)
	}
	w.PutUint32(42)

	r := NewReader(w.Bytes())
	s, err := r.GetShortString()
	if err != nil || s != "hello.txt" {
		t.Fatalf("GetShortString = %q, %v", s, err)
	}
	trailing, err := r.GetUint32()
	if err != nil || trailing != 42 {
		t.Fatalf("trailing uint32 = %v, %v", trailing, err)
	}
}

func TestShortBytesRoundTrip(t *testing.T) {
	w := NewWriter(0)
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if err := w.PutShortBytes(payload); err != nil {
		t.Fatal(err)
	}

	r := NewReader(w.Bytes())
	got, err := r.GetShortBytes()
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("GetShortBytes = %v, %v", got, err)
	}
}

func TestPutShortStringRejectsOverlong(t *testing.T) {
	w := NewWriter(0)
	if err := w.PutShortString(string(make([]byte, MaxShortStringLen+1))); err == nil {
		t.Fatal("expected error for overlong short string")
	}
}

func TestGetShortStringRejectsEmptyString(t *testing.T) {
	w := NewWriter(0)
	if err := w.PutShortString(""); err != nil {
		t.Fatal(err)
	}
	r := NewReader(w.Bytes())
	s, err := r.GetShortString()
	if err != nil || s != "" {
		t.Fatalf("GetShortString = %q, %v", s, err)
	}
}

func TestReaderReportsShortBuffer(t *testing.T) {
	r := NewReader([]byte{1, 2})
	if _, err := r.GetUint64(); err == nil {
		t.Fatal("expected short-buffer error")
	} else if sb, ok := err.(*ErrShortBuffer); !ok {
		t.Fatalf("expected *ErrShortBuffer, got %T", err)
	} else if sb.Need != 8 || sb.Have != 2 {
		t.Fatalf("ErrShortBuffer = %+v", sb)
	}
}

func TestReaderPositionIsSequential(t *testing.T) {
	w := NewWriter(0)
	w.PutUint8(1)
	_ = w.PutShortBytes([]byte("ab"))
	w.PutUint16(7)

	r := NewReader(w.Bytes())
	if v, err := r.GetUint8(); err != nil || v != 1 {
		t.Fatalf("GetUint8 = %v, %v", v, err)
	}
	if b, err := r.GetShortBytes(); err != nil || !bytes.Equal(b, []byte("ab")) {
		t.Fatalf("GetShortBytes = %v, %v", b, err)
	}
	if v, err := r.GetUint16(); err != nil || v != 7 {
		t.Fatalf("GetUint16 = %v, %v", v, err)
	}
}
