package storage

import "encoding/base64"

// obfuscator applies a reversible XOR against a static key. It hides values
// from casual inspection only; it is not encryption.
type obfuscator struct {
	key []byte
}

func newObfuscator(key string) obfuscator {
	return obfuscator{key: []byte(key)}
}

func (o obfuscator) xor(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ o.key[i%len(o.key)]
	}
	return out
}

// encode XORs value and base64-encodes the result.
func (o obfuscator) encode(value string) string {
	if len(o.key) == 0 {
		return value
	}
	return base64.StdEncoding.EncodeToString(o.xor([]byte(value)))
}

// decode reverses encode. Values that are not valid base64 are returned as
// stored, which covers data written before obfuscation was enabled.
func (o obfuscator) decode(stored string) string {
	if len(o.key) == 0 {
		return stored
	}
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return stored
	}
	return string(o.xor(raw))
}
