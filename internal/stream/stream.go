// Package stream implements the trailer convention that carries token
// usage and memory-state updates through a single answer text stream.
// Trailers are marker-delimited JSON segments appended after the visible
// answer; the decoder releases answer text incrementally while holding
// back anything that could be the start of a marker.
package stream

import (
	"encoding/json"
	"strings"

	"github.com/docsage/docsage/internal/adapter"
	"github.com/docsage/docsage/internal/convo"
)

// Trailer markers. The leading newline keeps a marker from gluing onto
// the last answer line; the @@@ runs make accidental collision with
// model prose unlikely.
const (
	markerPrefix = "\n@@@"
	usageMarker  = "\n@@@USAGE@@@"
	memoryMarker = "\n@@@MEMORY@@@"
	endMarker    = "@@@END@@@"
)

// Trailers holds the metadata decoded from a completed stream. Nil
// fields mean the segment was absent (or failed to parse), which is
// valid: a missing memory segment means no summary update occurred.
type Trailers struct {
	Usage  *adapter.Usage
	Memory *convo.State
}

// EncodeUsage renders the usage trailer segment.
func EncodeUsage(u adapter.Usage) string {
	b, _ := json.Marshal(u)
	return usageMarker + string(b) + endMarker
}

// EncodeMemory renders the memory-state trailer segment.
func EncodeMemory(s convo.State) string {
	b, _ := json.Marshal(s)
	return memoryMarker + string(b) + endMarker
}

// Decoder separates live answer text from trailing metadata segments.
// Feed each received fragment and display what it returns; after the
// stream ends, Finalize returns any withheld answer text plus the
// decoded trailers.
type Decoder struct {
	pending string
}

// Feed appends a stream fragment and returns the text that is safe to
// display now. Bytes that could open a trailer marker are withheld
// until more input (or Finalize) resolves them.
func (d *Decoder) Feed(fragment string) string {
	d.pending += fragment

	// Once a marker candidate appears, everything from it on is withheld;
	// Finalize decides whether it was a real trailer.
	if i := strings.Index(d.pending, markerPrefix); i >= 0 {
		out := d.pending[:i]
		d.pending = d.pending[i:]
		return out
	}

	// No full candidate: hold back only a trailing partial prefix.
	keep := suffixPrefixLen(d.pending, markerPrefix)
	out := d.pending[:len(d.pending)-keep]
	d.pending = d.pending[len(d.pending)-keep:]
	return out
}

// Finalize parses the withheld tail. It returns any remaining answer
// text (marker-lookalikes that turned out to be prose) and the decoded
// trailers. Malformed segments are swallowed: the answer text is never
// corrupted, only the metadata update is dropped.
func (d *Decoder) Finalize() (string, Trailers) {
	rest := d.pending
	d.pending = ""

	var answer strings.Builder
	var tr Trailers

	for rest != "" {
		i := strings.Index(rest, markerPrefix)
		if i < 0 {
			answer.WriteString(rest)
			break
		}
		answer.WriteString(rest[:i])
		rest = rest[i:]

		var marker string
		switch {
		case strings.HasPrefix(rest, usageMarker):
			marker = usageMarker
		case strings.HasPrefix(rest, memoryMarker):
			marker = memoryMarker
		default:
			// Prose that merely resembles a marker: release the newline
			// and keep scanning past it.
			answer.WriteString(rest[:1])
			rest = rest[1:]
			continue
		}

		body := rest[len(marker):]
		end := strings.Index(body, endMarker)
		if end < 0 {
			// Truncated segment: swallow it, keep the answer intact.
			break
		}
		payload := body[:end]
		rest = body[end+len(endMarker):]

		switch marker {
		case usageMarker:
			var u adapter.Usage
			if err := json.Unmarshal([]byte(payload), &u); err == nil {
				tr.Usage = &u
			}
		case memoryMarker:
			var s convo.State
			if err := json.Unmarshal([]byte(payload), &s); err == nil {
				tr.Memory = &s
			}
		}
	}

	return answer.String(), tr
}

// suffixPrefixLen returns the length of the longest suffix of s that is
// a prefix of marker.
func suffixPrefixLen(s, marker string) int {
	max := len(marker) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasPrefix(marker, s[len(s)-n:]) {
			return n
		}
	}
	return 0
}
