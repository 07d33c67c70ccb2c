package varint

import (
	"errors"
	"math"
	"testing"

	"github.com/danmuck/xrsync/internal/protocol"
	"github.com/danmuck/xrsync/internal/testutil/testlog"
)

func TestRoundTripMinimalSize(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		v    uint32
		size int
	}{
		{0, 1},
		{1, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
		{1<<31 - 1, 5},
		{math.MaxUint32, 5},
	}
	for _, tc := range cases {
		enc := Append(nil, tc.v)
		if len(enc) != tc.size || Size(tc.v) != tc.size {
			t.Fatalf("value=%d encoded=%d size=%d want=%d", tc.v, len(enc), Size(tc.v), tc.size)
		}
		got, n, err := Read(enc, 0)
		if err != nil {
			t.Fatalf("value=%d read: %v", tc.v, err)
		}
		if got != tc.v || n != tc.size {
			t.Fatalf("value=%d got=%d n=%d", tc.v, got, n)
		}
	}
}

func TestEncodingLayout(t *testing.T) {
	testlog.Start(t)
	enc := Append(nil, 300)
	if len(enc) != 2 || enc[0] != 0xac || enc[1] != 0x02 {
		t.Fatalf("unexpected layout: %x", enc)
	}
}

func TestPutAtOffset(t *testing.T) {
	testlog.Start(t)
	buf := make([]byte, 4)
	n, err := Put(buf, 1, 16384)
	if err != nil || n != 3 {
		t.Fatalf("put n=%d err=%v", n, err)
	}
	got, _, err := Read(buf, 1)
	if err != nil || got != 16384 {
		t.Fatalf("read back got=%d err=%v", got, err)
	}
	if _, err := Put(buf, 2, 16384); !errors.Is(err, protocol.ErrShortBuffer) {
		t.Fatalf("expected short buffer, got %v", err)
	}
}

func TestReadTruncated(t *testing.T) {
	testlog.Start(t)
	if _, _, err := Read([]byte{0x80, 0x80}, 0); !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expected truncated, got %v", err)
	}
	if _, _, err := Read([]byte{0x01}, 1); !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expected truncated past end, got %v", err)
	}
}

func TestReadOverflow(t *testing.T) {
	testlog.Start(t)
	if _, _, err := Read([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01}, 0); !errors.Is(err, protocol.ErrBadVarint) {
		t.Fatalf("expected bad varint for six byte encoding, got %v", err)
	}
	if _, _, err := Read([]byte{0xff, 0xff, 0xff, 0xff, 0x7f}, 0); !errors.Is(err, protocol.ErrBadVarint) {
		t.Fatalf("expected bad varint for >32 bit value, got %v", err)
	}
}
