package process

import (
	"errors"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/zjrosen/fancyterm/internal/events"
	"github.com/zjrosen/fancyterm/internal/log"
)

const readChunkSize = 4096

// readStream pushes each chunk read from r to sink as soon as it arrives.
// A multi-byte rune split across reads is carried into the next chunk;
// invalid bytes become U+FFFD. It returns on EOF or any read error and never
// emits lifecycle events.
func readStream(handleID string, r io.Reader, tag events.Tag, sink events.Sink) {
	buf := make([]byte, readChunkSize)
	var carry []byte

	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := buf[:n]
			if len(carry) > 0 {
				data = append(carry, data...)
				carry = nil
			}
			cut := completeRunes(data)
			if cut > 0 {
				sink.Push(events.Event{Content: toText(data[:cut]), Tag: tag})
			}
			if cut < len(data) {
				carry = append([]byte(nil), data[cut:]...)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				rerr := &ReadError{HandleID: handleID, Stream: tag.String(), Err: err}
				log.Debug(log.CatProc, "Stream read failed", "error", rerr)
			}
			break
		}
	}

	if len(carry) > 0 {
		sink.Push(events.Event{Content: toText(carry), Tag: tag})
	}
}

// completeRunes returns the length of the longest prefix of b that does not
// end in a truncated UTF-8 sequence.
func completeRunes(b []byte) int {
	for i := len(b) - 1; i >= 0 && i > len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

func toText(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
