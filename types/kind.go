package types

import (
	"encoding/json"
	"fmt"
)

// Kind classifies a message. The zero value is invalid; use one of the
// well-known kinds below or CustomKind.
type Kind struct {
	name   string
	custom bool
}

// Well-known kinds. Their wire form is the upper-case token itself.
var (
	KindPeerDiscovery             = Kind{name: "PEER_DISCOVERY"}
	KindRequestLocalPeers         = Kind{name: "REQUEST_LOCAL_PEERS"}
	KindLocalPeers                = Kind{name: "LOCAL_PEERS"}
	KindRequestSharedObjectUpdate = Kind{name: "REQUEST_SHARED_OBJECT_UPDATE"}
	KindSharedObjectUpdate        = Kind{name: "SHARED_OBJECT_UPDATE"}
	KindGet                       = Kind{name: "GET"}
	KindSet                       = Kind{name: "SET"}
	KindDelete                    = Kind{name: "DELETE"}
	KindResponse                  = Kind{name: "RESPONSE"}
	KindNotification              = Kind{name: "NOTIFICATION"}
	KindHeartbeat                 = Kind{name: "HEARTBEAT"}
	KindError                     = Kind{name: "ERROR"}
)

var wellKnownKinds = map[string]Kind{
	"PEER_DISCOVERY":               KindPeerDiscovery,
	"REQUEST_LOCAL_PEERS":          KindRequestLocalPeers,
	"LOCAL_PEERS":                  KindLocalPeers,
	"REQUEST_SHARED_OBJECT_UPDATE": KindRequestSharedObjectUpdate,
	"SHARED_OBJECT_UPDATE":         KindSharedObjectUpdate,
	"GET":                          KindGet,
	"SET":                          KindSet,
	"DELETE":                       KindDelete,
	"RESPONSE":                     KindResponse,
	"NOTIFICATION":                 KindNotification,
	"HEARTBEAT":                    KindHeartbeat,
	"ERROR":                        KindError,
}

// CustomKind returns an application-defined kind with the given name.
// Custom kinds form an open namespace; two custom kinds are equal iff
// their names are equal.
func CustomKind(name string) Kind {
	return Kind{name: name, custom: true}
}

// Name returns the kind's token, for well-known kinds the upper-case
// token and for custom kinds the application-chosen name.
func (k Kind) Name() string { return k.name }

// IsCustom reports whether the kind is application-defined.
func (k Kind) IsCustom() bool { return k.custom }

func (k Kind) String() string { return k.name }

// hashToken is the string the content hash commits to. Custom kinds
// are prefixed so a custom kind named "GET" hashes differently from
// the well-known GET.
func (k Kind) hashToken() string {
	if k.custom {
		return "Custom:" + k.name
	}
	return k.name
}

type customKindWire struct {
	Custom string `json:"Custom"`
}

// MarshalJSON encodes well-known kinds as bare token strings and
// custom kinds as {"Custom": "<name>"}.
func (k Kind) MarshalJSON() ([]byte, error) {
	if k.custom {
		return json.Marshal(customKindWire{Custom: k.name})
	}
	if k.name == "" {
		return nil, fmt.Errorf("marshal kind: zero kind")
	}
	return json.Marshal(k.name)
}

// UnmarshalJSON accepts both wire forms. An unrecognized bare token is
// treated as a custom kind so peers with newer kind vocabularies stay
// decodable.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var token string
	if err := json.Unmarshal(data, &token); err == nil {
		if wk, ok := wellKnownKinds[token]; ok {
			*k = wk
			return nil
		}
		*k = Kind{name: token, custom: true}
		return nil
	}
	var cw customKindWire
	if err := json.Unmarshal(data, &cw); err != nil {
		return fmt.Errorf("unmarshal kind: %w", err)
	}
	if cw.Custom == "" {
		return fmt.Errorf("unmarshal kind: empty custom name")
	}
	*k = Kind{name: cw.Custom, custom: true}
	return nil
}
