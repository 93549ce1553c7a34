// Package toolkit contains useful, general-purpose utilities
package toolkit

import (
	"bytes"
	"sync"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var bufPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// GetBuffer returns an empty buffer, along with a function which can be used to
// return it to a global pool, which helps reduce allocations.
func GetBuffer() (*bytes.Buffer, func()) {
	buf := bufPool.Get().(*bytes.Buffer)
	return buf, func() {
		buf.Reset()
		bufPool.Put(buf)
	}
}

// DecodeText decodes the raw bytes of a text file into a string. A UTF-8 or
// UTF-16 byte order mark is honored and stripped, otherwise the bytes are
// assumed to be UTF-8. Invalid sequences are replaced with the unicode
// replacement character, so DecodeText never fails.
func DecodeText(b []byte) string {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, b)
	if err != nil {
		// The decoders used only error on truncated UTF-16 input, in which
		// case the bytes are passed through as-is.
		return string(b)
	}
	return string(out)
}
