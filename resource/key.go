package resource

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// Key identifies a cache entry: an endpoint path plus every parameter that
// affects the response (page index, serialized filters, serialized sort).
// The zero Key means "do not fetch".
type Key struct {
	path   string
	params []string
}

// Digest is the BLAKE3 keyed hash of a Key. Entries and in-flight requests are
// indexed by digest so long serialized filters never become map keys.
type Digest [32]byte

// String returns the hex form of the digest.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// keyDomain separates cache-key hashes from any other BLAKE3 use.
var keyDomain = [32]byte{
	'c', 'o', 'n', 's', 'o', 'l', 'e', 's', 'y', 'n', 'c', '.',
	'r', 'e', 's', 'o', 'u', 'r', 'c', 'e', '.', 'k', 'e', 'y',
}

// NewKey builds a composite key. Strings and integers are used verbatim; any
// other parameter is serialized as JSON, so two filter structs with equal
// contents produce equal keys.
func NewKey(path string, params ...any) Key {
	k := Key{path: path, params: make([]string, 0, len(params))}
	for _, p := range params {
		k.params = append(k.params, encodeParam(p))
	}
	return k
}

func encodeParam(p any) string {
	switch v := p.(type) {
	case nil:
		return "null"
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// IsZero reports whether k is the "do not fetch" key.
func (k Key) IsZero() bool { return k.path == "" }

// Path returns the endpoint path of the key.
func (k Key) Path() string { return k.path }

// Params returns a copy of the encoded parameters.
func (k Key) Params() []string { return append([]string(nil), k.params...) }

// String renders the key for logs.
func (k Key) String() string {
	if k.IsZero() {
		return "<none>"
	}
	if len(k.params) == 0 {
		return k.path
	}
	return k.path + "?" + strings.Join(k.params, "&")
}

// Equal reports whether two keys address the same entry.
func (k Key) Equal(other Key) bool {
	return k.Digest() == other.Digest()
}

// Digest hashes the path and parameters, each length-prefixed so that no two
// different parameter lists collide by concatenation.
func (k Key) Digest() Digest {
	hasher, err := blake3.NewKeyed(keyDomain[:])
	if err != nil {
		panic("resource: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var length [8]byte
	write := func(s string) {
		binary.BigEndian.PutUint64(length[:], uint64(len(s)))
		hasher.Write(length[:])
		hasher.Write([]byte(s))
	}
	write(k.path)
	for _, p := range k.params {
		write(p)
	}
	var d Digest
	copy(d[:], hasher.Sum(nil))
	return d
}
