package eris

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CapabilityCBORTag is the registered CBOR tag for an ERIS read
// capability; the tag content is the 66-byte binary layout as a byte
// string.
const CapabilityCBORTag = 276

// MarshalCBOR encodes the capability as CBOR tag 276.
func (c Capability) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(cbor.Tag{Number: CapabilityCBORTag, Content: c.Bytes()})
}

// UnmarshalCBOR decodes a capability from CBOR tag 276.
func (c *Capability) UnmarshalCBOR(data []byte) error {
	var raw cbor.RawTag
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("capability cbor: %w", err)
	}
	if raw.Number != CapabilityCBORTag {
		return fmt.Errorf("cbor tag %d: %w", raw.Number, ErrBadCapability)
	}
	var payload []byte
	if err := cbor.Unmarshal(raw.Content, &payload); err != nil {
		return fmt.Errorf("capability cbor payload: %w", err)
	}
	parsed, err := CapabilityFromBytes(payload)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
