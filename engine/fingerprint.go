package engine

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Fingerprint identifies a compiled module: a BLAKE3 keyed hash over the
// backend and the verified binary.
type Fingerprint [32]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short returns the first 12 hex digits.
func (f Fingerprint) Short() string {
	return hex.EncodeToString(f[:6])
}

// fingerprintKey is the ASCII domain name zero-padded to 32 bytes.
var fingerprintKey = [32]byte{
	'w', 'a', 's', 'm', '-', 'e', 'n', 'c', 'l', 'a', 'v', 'e', '.',
	'm', 'o', 'd', 'u', 'l', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

func fingerprint(backend Backend, bin []byte) Fingerprint {
	h, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		panic("engine: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	h.Write([]byte{byte(backend)})
	h.Write(bin)
	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f
}
