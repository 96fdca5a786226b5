package crypto

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HexBytes is a byte slice that serializes as a lower-case hex string.
type HexBytes []byte

func (hb HexBytes) String() string {
	return hex.EncodeToString(hb)
}

func (hb HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(hb))
}

func (hb *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unmarshal hex bytes: %w", err)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("unmarshal hex bytes: %w", err)
	}
	*hb = b
	return nil
}
