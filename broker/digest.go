package broker

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strings"
)

// md5Hex matches the teacher's hashAttributes/MD5 pattern in
// store/fdb.go, but follows the exact SQS digest algorithm from spec.md
// §6 rather than the teacher's simplified placeholder.
func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func bodyDigest(body string) string {
	return md5Hex([]byte(body))
}

// attributesDigest implements spec.md §6's MD5OfMessageAttributes
// algorithm: for each attribute sorted by name, write a length-prefixed
// name, length-prefixed DataType, a type tag byte (1=String/Number,
// 2=Binary), and length-prefixed value bytes, then MD5 the concatenation.
// Returns "" when attrs is empty, matching "present iff attributes
// non-empty".
func attributesDigest(attrs map[string]AttributeValue) string {
	if len(attrs) == 0 {
		return ""
	}
	names := make([]string, 0, len(attrs))
	for k := range attrs {
		names = append(names, k)
	}
	sort.Strings(names)

	var buf []byte
	writeLenPrefixed := func(s []byte) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, s...)
	}

	for _, name := range names {
		v := attrs[name]
		writeLenPrefixed([]byte(name))
		writeLenPrefixed([]byte(v.DataType))

		switch {
		case strings.HasPrefix(v.DataType, "String"), strings.HasPrefix(v.DataType, "Number"):
			buf = append(buf, 1)
			writeLenPrefixed([]byte(v.StringValue))
		case strings.HasPrefix(v.DataType, "Binary"):
			buf = append(buf, 2)
			writeLenPrefixed(v.BinaryValue)
		}
	}
	return md5Hex(buf)
}

// contentDedupId implements FIFO content-based deduplication from
// spec.md §4.1 step 2: dedupId = SHA-256(body) as 64-char lowercase hex.
func contentDedupId(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
