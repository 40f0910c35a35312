package signature

// JWK is the public half of a browser-generated ECDSA P-256 key as exported
// by SubtleCrypto.exportKey("jwk", ...).
type JWK struct {
	Kty    string   `json:"kty"`
	Crv    string   `json:"crv"`
	X      string   `json:"x"`
	Y      string   `json:"y"`
	Ext    bool     `json:"ext,omitempty"`
	KeyOps []string `json:"key_ops,omitempty"`
}
