package aida

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// TypeHash identifies an interface type or a method/signal signature.
// Both ends of a connection derive identical hashes from the same IDL contract.
type TypeHash struct {
	Hi, Lo uint64
}

// TypeHashList is the ordered list of types an object implements, most derived first.
type TypeHashList []TypeHash

// Less orders by Hi, then Lo.
func (h TypeHash) Less(o TypeHash) bool {
	if h.Hi == o.Hi {
		return h.Lo < o.Lo
	}
	return h.Hi < o.Hi
}

// Compare returns -1, 0 or +1.
func (h TypeHash) Compare(o TypeHash) int {
	switch {
	case h == o:
		return 0
	case h.Less(o):
		return -1
	default:
		return 1
	}
}

func (h TypeHash) IsZero() bool { return h.Hi == 0 && h.Lo == 0 }

func (h TypeHash) String() string { return fmt.Sprintf("(0x%016x,0x%016x)", h.Hi, h.Lo) }

// Contains reports whether h is part of the list.
func (l TypeHashList) Contains(h TypeHash) bool {
	for _, t := range l {
		if t == h {
			return true
		}
	}
	return false
}

// HashKind selects the high nibble of a derived TypeHash.
type HashKind byte

const (
	HashType   HashKind = 0x00
	HashOneway HashKind = 0x20
	HashTwoway HashKind = 0x30
	HashSigcon HashKind = 0x50
)

func (k HashKind) tag() string {
	switch k {
	case HashOneway:
		return "oneway"
	case HashTwoway:
		return "twoway"
	case HashSigcon:
		return "sigcon"
	default:
		return "type"
	}
}

var hashNamespace = uuid.MustParse("fc4676dd-248d-4958-a7fa-e170a4d8a68c")

// TypeHashFor derives the hash for an IDL signature such as
// "A1::MiniServer::message string" and the given kind.
func TypeHashFor(kind HashKind, signature string) TypeHash {
	u := uuid.NewHash(sha256.New(), hashNamespace, []byte(kind.tag()+" | "+signature), 5)
	u[0] = byte(kind)&0xf0 | u[0]&0x0f
	return TypeHash{Hi: binary.BigEndian.Uint64(u[0:8]), Lo: binary.BigEndian.Uint64(u[8:16])}
}

// Hashes of the introspection methods every ImplicitBase answers.
var (
	HashTypeList = TypeHash{0xcb2b5528f621af7f, 0x2bb5872e0c576a11}
	HashAuxData  = TypeHash{0x2fce580dcb2bc25d, 0x09b4b91eed573c19}
	HashDir      = TypeHash{0xbad85206b64fb121, 0x0c8c9ea7b21db922}
	HashGet      = TypeHash{0xbbb0c7133dfe9ee1, 0x4390b3489ecbe71e}
	HashSet      = TypeHash{0x5b0fcf5339c750cd, 0x3bab8ba66b8e970f}
)
