package keys

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// MaxExpiryTime is the latest expiry a key can carry, the last millisecond
// that still formats as RFC 3339.
var MaxExpiryTime = time.Date(9999, time.December, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC)

// KeyType identifies what a key is used for.
type KeyType int

const (
	// KeyTypeUndefined is the zero value and never fetched.
	KeyTypeUndefined KeyType = 0

	// KeyTypeEncryption marks public keys used to encrypt payloads.
	KeyTypeEncryption KeyType = 1
)

// String returns the lowercase name of the key type.
func (t KeyType) String() string {
	switch t {
	case KeyTypeEncryption:
		return "encryption"
	case KeyTypeUndefined:
		return "undefined"
	default:
		return fmt.Sprintf("key_type(%d)", int(t))
	}
}

// ParseKeyType converts a name produced by String back into a KeyType.
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "encryption", "1":
		return KeyTypeEncryption, nil
	case "undefined", "0":
		return KeyTypeUndefined, nil
	default:
		return KeyTypeUndefined, fmt.Errorf("%w: unknown key type %q", ErrInvalidKey, s)
	}
}

// EncryptionKey is a public key together with its validity window.
//
// Times carry millisecond precision, matching what every store persists.
type EncryptionKey struct {
	KeyIdentifier string    `json:"key_identifier"`
	PublicKey     string    `json:"public_key"`
	KeyType       KeyType   `json:"key_type"`
	CreationTime  time.Time `json:"creation_time"`
	ExpiryTime    time.Time `json:"expiry_time"`
}

// NewEncryptionKey validates and builds an EncryptionKey.
func NewEncryptionKey(id, publicKey string, keyType KeyType, creation, expiry time.Time) (EncryptionKey, error) {
	if id == "" {
		return EncryptionKey{}, fmt.Errorf("%w: empty key identifier", ErrInvalidKey)
	}
	if publicKey == "" {
		return EncryptionKey{}, fmt.Errorf("%w: empty public key for %s", ErrInvalidKey, id)
	}

	creation, expiry = TruncateMillis(creation), TruncateMillis(expiry)
	if !expiry.After(creation) {
		return EncryptionKey{}, fmt.Errorf("%w: expiry %s not after creation %s for %s",
			ErrInvalidKey, expiry.Format(time.RFC3339Nano), creation.Format(time.RFC3339Nano), id)
	}

	return EncryptionKey{
		KeyIdentifier: id,
		PublicKey:     publicKey,
		KeyType:       keyType,
		CreationTime:  creation,
		ExpiryTime:    expiry,
	}, nil
}

// IsActive reports whether the key has not expired at now.
func (k EncryptionKey) IsActive(now time.Time) bool {
	return k.ExpiryTime.After(now)
}

// TruncateMillis drops sub-millisecond precision and the monotonic reading.
func TruncateMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}

// ExpiryAfter returns creation plus ttlSeconds, computed in milliseconds and
// saturated at MaxExpiryTime.
func ExpiryAfter(creation time.Time, ttlSeconds int64) time.Time {
	start := creation.UnixMilli()
	limit := MaxExpiryTime.UnixMilli()
	if ttlSeconds > (math.MaxInt64-start)/1000 || start+ttlSeconds*1000 > limit {
		return time.UnixMilli(limit)
	}
	return time.UnixMilli(start + ttlSeconds*1000)
}
