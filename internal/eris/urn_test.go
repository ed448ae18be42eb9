package eris_test

import (
	"encoding/base32"
	"errors"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"eris/internal/eris"
)

func testCap(bs eris.BlockSize, level uint8, seed byte) eris.Capability {
	var root eris.Pair
	for i := range root {
		root[i] = seed + byte(i)
	}
	return eris.Capability{BlockSize: bs, Level: level, Root: root}
}

func TestURNRoundTrip(t *testing.T) {
	caps := []eris.Capability{
		testCap(eris.BlockSize1KiB, 0, 1),
		testCap(eris.BlockSize1KiB, 3, 2),
		testCap(eris.BlockSize32KiB, 0, 3),
		testCap(eris.BlockSize32KiB, 255, 4),
	}
	for _, c := range caps {
		urn := c.URN()
		if !strings.HasPrefix(urn, "urn:erisx3:") {
			t.Fatalf("expected urn:erisx3 prefix, got %s", urn)
		}
		if len(urn) != len("urn:erisx3:")+106 {
			t.Fatalf("expected a 106 character payload, got %d", len(urn)-len("urn:erisx3:"))
		}
		got, err := eris.ParseURN(urn)
		if err != nil {
			t.Fatalf("failed to parse %s: %v", urn, err)
		}
		if got != c {
			t.Fatalf("expected capability %+v, got %+v", c, got)
		}
	}
}

func TestParseURNTrailingPayload(t *testing.T) {
	c := testCap(eris.BlockSize1KiB, 1, 9)
	got, err := eris.ParseURN(c.URN() + "EXTRADATA234")
	if err != nil {
		t.Fatalf("failed to parse with trailing payload: %v", err)
	}
	if got != c {
		t.Fatalf("expected capability %+v, got %+v", c, got)
	}
}

func TestParseURNErrors(t *testing.T) {
	codec := base32.StdEncoding.WithPadding(base32.NoPadding)

	good := testCap(eris.BlockSize1KiB, 0, 7).Bytes()
	badCode := append([]byte(nil), good...)
	badCode[0] = 0x0b

	tests := []struct {
		name string
		urn  string
	}{
		{"empty", ""},
		{"wrong scheme", "url:erisx3:" + codec.EncodeToString(good)},
		{"wrong nid", "urn:eris:" + codec.EncodeToString(good)},
		{"missing payload", "urn:erisx3"},
		{"extra colon", "urn:erisx3:abc:def"},
		{"short payload", "urn:erisx3:" + codec.EncodeToString(good)[:105]},
		{"invalid base32", "urn:erisx3:" + strings.Repeat("!", 106)},
		{"unknown block size code", "urn:erisx3:" + codec.EncodeToString(badCode)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := eris.ParseURN(tt.urn); !errors.Is(err, eris.ErrBadCapability) {
				t.Fatalf("expected ErrBadCapability, got %v", err)
			}
		})
	}
}

func TestCapabilityFromBytes(t *testing.T) {
	c := testCap(eris.BlockSize32KiB, 2, 5)
	got, err := eris.CapabilityFromBytes(c.Bytes())
	if err != nil {
		t.Fatalf("failed to parse capability bytes: %v", err)
	}
	if got != c {
		t.Fatalf("expected capability %+v, got %+v", c, got)
	}

	// Any level byte is valid, even one no encoder produces
	high := c.Bytes()
	high[1] = 200
	if got, err = eris.CapabilityFromBytes(high); err != nil {
		t.Fatalf("failed to parse level 200: %v", err)
	}
	if got.Level != 200 {
		t.Fatalf("expected level 200, got %d", got.Level)
	}

	for _, n := range []int{0, 65, 67} {
		if _, err := eris.CapabilityFromBytes(make([]byte, n)); !errors.Is(err, eris.ErrBadCapability) {
			t.Fatalf("expected ErrBadCapability for length %d, got %v", n, err)
		}
	}

	bad := c.Bytes()
	bad[0] = 0xff
	if _, err := eris.CapabilityFromBytes(bad); !errors.Is(err, eris.ErrBadCapability) {
		t.Fatalf("expected ErrBadCapability for a bad block size code, got %v", err)
	}
}

func TestCapabilityCBOR(t *testing.T) {
	c := testCap(eris.BlockSize1KiB, 4, 11)

	data, err := cbor.Marshal(c)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	// Tag 276 followed by a 66-byte string
	want := []byte{0xd9, 0x01, 0x14, 0x58, 0x42}
	if len(data) != len(want)+66 {
		t.Fatalf("expected %d bytes of cbor, got %d", len(want)+66, len(data))
	}
	for i, b := range want {
		if data[i] != b {
			t.Fatalf("expected cbor header byte %d to be %#02x, got %#02x", i, b, data[i])
		}
	}

	var got eris.Capability
	if err := cbor.Unmarshal(data, &got); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if got != c {
		t.Fatalf("expected capability %+v, got %+v", c, got)
	}

	// A foreign tag is not a capability
	other, err := cbor.Marshal(cbor.Tag{Number: 42, Content: c.Bytes()})
	if err != nil {
		t.Fatalf("failed to marshal tag 42: %v", err)
	}
	if err := cbor.Unmarshal(other, &got); !errors.Is(err, eris.ErrBadCapability) {
		t.Fatalf("expected ErrBadCapability for tag 42, got %v", err)
	}
}

func TestParseReference(t *testing.T) {
	var ref eris.Reference
	for i := range ref {
		ref[i] = byte(i * 3)
	}
	s := ref.String()
	if len(s) != 52 {
		t.Fatalf("expected a 52 character reference, got %d", len(s))
	}
	got, err := eris.ParseReference(s)
	if err != nil {
		t.Fatalf("failed to parse reference: %v", err)
	}
	if got != ref {
		t.Fatalf("expected reference %s, got %s", ref, got)
	}

	for _, bad := range []string{"", "!!!!", s[:50], s + s} {
		if _, err := eris.ParseReference(bad); !errors.Is(err, eris.ErrBadReference) {
			t.Fatalf("expected ErrBadReference for %q, got %v", bad, err)
		}
	}
}
