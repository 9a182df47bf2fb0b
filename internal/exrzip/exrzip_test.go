package exrzip_test

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/vearutop/panodecode/internal/exrzip"
)

func TestCompressReverse(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for _, n := range []int{0, 1, 2, 3, 17, 4096, 4097} {
		raw := make([]byte, n)
		for i := range raw {
			raw[i] = byte(i/64) ^ byte(rng.Intn(4))
		}
		for _, order := range []exrzip.Order{exrzip.OrderPredictorFirst, exrzip.OrderInterleaveFirst} {
			comp, err := exrzip.Compress(raw, order)
			if err != nil {
				t.Fatal(err)
			}
			inflated, err := exrzip.Inflate(comp, n)
			if err != nil {
				t.Fatalf("%d bytes, %s: %v", n, order, err)
			}
			if got := exrzip.Reverse(inflated, order); !bytes.Equal(got, raw) {
				t.Fatalf("%d bytes, %s: round trip mismatch", n, order)
			}
		}
	}
}

func TestReverse_doesNotModifyInput(t *testing.T) {
	in := []byte{1, 2, 3, 4, 5}
	exrzip.Reverse(in, exrzip.OrderPredictorFirst)
	exrzip.Reverse(in, exrzip.OrderInterleaveFirst)
	if !bytes.Equal(in, []byte{1, 2, 3, 4, 5}) {
		t.Fatalf("input modified: %v", in)
	}
}

func TestInterleaveSplit(t *testing.T) {
	planes := []byte{0, 2, 4, 1, 3}
	want := []byte{0, 1, 2, 3, 4}
	if got := exrzip.Interleave(planes); !bytes.Equal(got, want) {
		t.Fatalf("Interleave = %v, want %v", got, want)
	}
	if got := exrzip.Split(want); !bytes.Equal(got, planes) {
		t.Fatalf("Split = %v, want %v", got, planes)
	}
}

func TestPredictor(t *testing.T) {
	data := []byte{10, 138, 118, 128}
	exrzip.UndoPredictor(data)
	want := []byte{10, 20, 10, 10}
	if !bytes.Equal(data, want) {
		t.Fatalf("UndoPredictor = %v, want %v", data, want)
	}
	exrzip.ApplyPredictor(data)
	if !bytes.Equal(data, []byte{10, 138, 118, 128}) {
		t.Fatalf("ApplyPredictor = %v", data)
	}
}

func TestInflate_sizeMismatch(t *testing.T) {
	comp, err := exrzip.Compress(make([]byte, 100), exrzip.OrderPredictorFirst)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := exrzip.Inflate(comp, 101); !errors.Is(err, exrzip.ErrSize) {
		t.Fatalf("short: got %v", err)
	}
	if _, err := exrzip.Inflate(comp, 99); !errors.Is(err, exrzip.ErrSize) {
		t.Fatalf("long: got %v", err)
	}
	// A declared size far beyond the stream fails without reserving it.
	if _, err := exrzip.Inflate(comp, 1<<45); !errors.Is(err, exrzip.ErrSize) {
		t.Fatalf("huge: got %v", err)
	}
	if _, err := exrzip.Inflate([]byte("not zlib"), 10); err == nil {
		t.Fatal("expected error for garbage input")
	}
}
