package misc

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
	"unsafe"
)

const StandardTimestamp = `20050102`

var (
	ErrMissingId = errors.New("missing id")
)

const trackingAlphabet = "1234567890abcdefghijklmnopqrstuvwxyz"

// TrackingCode builds a short human-shareable code: prefix, a dash and n
// random characters from a fixed alphabet, uppercased. Collision odds at
// n=10 are negligible for our volumes.
func TrackingCode(prefix string, n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return strings.ToUpper(prefix + "-" + PseudoUUID()[:n])
	}
	for i, b := range buf {
		buf[i] = trackingAlphabet[int(b)%len(trackingAlphabet)]
	}
	return strings.ToUpper(prefix + "-" + string(buf))
}

// 9 bytes of unixnano and 7 random bytes
func PseudoUUID() string {
	now := time.Now().UnixNano()
	randPart := make([]byte, 7)
	if _, err := rand.Read(randPart); err != nil {
		copy(randPart, (*(*[8]byte)(unsafe.Pointer(&now)))[:7])
	}
	return strconv.FormatInt(now, 10)[1:] + hex.EncodeToString(randPart)
}

// TruncatePostal keeps the non-identifying prefix of a postal code, the
// rest is masked before it reaches any outbound message or response.
func TruncatePostal(postal string) string {
	if len(postal) <= 3 {
		return postal
	}
	return postal[:3] + " ***"
}
