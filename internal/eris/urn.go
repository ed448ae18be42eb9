package eris

import (
	"encoding/base32"
	"fmt"
	"strings"
)

// Capabilities print as urn:erisx3 followed by the unpadded base32 of
// the 66-byte binary layout, always 106 characters of payload.
const (
	urnPrefix     = "urn:erisx3:"
	urnPayloadLen = 106
)

var base32Codec = base32.StdEncoding.WithPadding(base32.NoPadding)

// URN returns the urn:erisx3 text form of the capability.
func (c Capability) URN() string {
	return urnPrefix + base32Codec.EncodeToString(c.Bytes())
}

// String returns the URN form.
func (c Capability) String() string { return c.URN() }

// ParseURN parses a urn:erisx3 capability. The payload may carry
// characters beyond the 106 that encode the capability; the remainder
// is ignored.
func ParseURN(urn string) (Capability, error) {
	parts := strings.Split(urn, ":")
	if len(parts) != 3 || parts[0] != "urn" || parts[1] != "erisx3" {
		return Capability{}, fmt.Errorf("URN %q: %w", urn, ErrBadCapability)
	}
	payload := parts[2]
	if len(payload) < urnPayloadLen {
		return Capability{}, fmt.Errorf("URN payload length %d: %w", len(payload), ErrBadCapability)
	}
	raw, err := base32Codec.DecodeString(payload[:urnPayloadLen])
	if err != nil {
		return Capability{}, fmt.Errorf("URN payload: %w", ErrBadCapability)
	}
	return CapabilityFromBytes(raw)
}

// ParseReference parses the base32 reference form produced by
// Reference.String.
func ParseReference(s string) (Reference, error) {
	raw, err := base32Codec.DecodeString(s)
	if err != nil || len(raw) != ReferenceSize {
		return Reference{}, fmt.Errorf("reference %q: %w", s, ErrBadReference)
	}
	return Reference(raw), nil
}
