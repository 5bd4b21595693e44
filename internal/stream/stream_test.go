package stream

import (
	"strings"
	"testing"

	"github.com/docsage/docsage/internal/adapter"
	"github.com/docsage/docsage/internal/convo"
)

func decodeAll(t *testing.T, fragments []string) (string, Trailers) {
	t.Helper()
	var d Decoder
	var shown strings.Builder
	for _, f := range fragments {
		shown.WriteString(d.Feed(f))
	}
	rest, tr := d.Finalize()
	shown.WriteString(rest)
	return shown.String(), tr
}

func TestRoundTrip(t *testing.T) {
	usage := adapter.Usage{PromptTokens: 120, CompletionTokens: 45}
	state := convo.State{Summary: "they discussed chapter two", SummarizedThrough: 4}

	raw := "The answer is forty-two." + EncodeUsage(usage) + EncodeMemory(state)
	answer, tr := decodeAll(t, []string{raw})

	if answer != "The answer is forty-two." {
		t.Errorf("answer: got %q", answer)
	}
	if tr.Usage == nil || *tr.Usage != usage {
		t.Errorf("usage: %+v", tr.Usage)
	}
	if tr.Memory == nil || *tr.Memory != state {
		t.Errorf("memory: %+v", tr.Memory)
	}
}

func TestDecode_SplitAcrossReads(t *testing.T) {
	usage := adapter.Usage{PromptTokens: 7, CompletionTokens: 3}
	state := convo.State{Summary: "s", SummarizedThrough: 1}
	raw := "Hello world." + EncodeUsage(usage) + EncodeMemory(state)

	// Every possible split point, including mid-marker and mid-payload.
	for cut := 1; cut < len(raw); cut++ {
		answer, tr := decodeAll(t, []string{raw[:cut], raw[cut:]})
		if answer != "Hello world." {
			t.Fatalf("cut %d: answer %q", cut, answer)
		}
		if tr.Usage == nil || *tr.Usage != usage {
			t.Fatalf("cut %d: usage %+v", cut, tr.Usage)
		}
		if tr.Memory == nil || *tr.Memory != state {
			t.Fatalf("cut %d: memory %+v", cut, tr.Memory)
		}
	}
}

func TestDecode_OneBytePerRead(t *testing.T) {
	usage := adapter.Usage{PromptTokens: 1, CompletionTokens: 2}
	raw := "Answer text.\nSecond line." + EncodeUsage(usage)

	fragments := make([]string, 0, len(raw))
	for _, b := range []byte(raw) {
		fragments = append(fragments, string(b))
	}
	answer, tr := decodeAll(t, fragments)
	if answer != "Answer text.\nSecond line." {
		t.Errorf("answer: %q", answer)
	}
	if tr.Usage == nil || *tr.Usage != usage {
		t.Errorf("usage: %+v", tr.Usage)
	}
}

func TestDecode_MissingMemorySegmentIsValid(t *testing.T) {
	answer, tr := decodeAll(t, []string{"Plain answer." + EncodeUsage(adapter.Usage{PromptTokens: 1})})
	if answer != "Plain answer." {
		t.Errorf("answer: %q", answer)
	}
	if tr.Usage == nil {
		t.Error("usage segment lost")
	}
	if tr.Memory != nil {
		t.Errorf("expected no memory update, got %+v", tr.Memory)
	}
}

func TestDecode_NoTrailersAtAll(t *testing.T) {
	answer, tr := decodeAll(t, []string{"Just ", "an ", "answer."})
	if answer != "Just an answer." {
		t.Errorf("answer: %q", answer)
	}
	if tr.Usage != nil || tr.Memory != nil {
		t.Errorf("unexpected trailers: %+v", tr)
	}
}

func TestDecode_MalformedPayloadSwallowed(t *testing.T) {
	raw := "The answer." + usageMarker + "{not json" + endMarker
	answer, tr := decodeAll(t, []string{raw})
	if answer != "The answer." {
		t.Errorf("answer corrupted: %q", answer)
	}
	if tr.Usage != nil {
		t.Errorf("malformed usage should be dropped, got %+v", tr.Usage)
	}
}

func TestDecode_TruncatedSegmentSwallowed(t *testing.T) {
	raw := "The answer." + usageMarker + `{"promptTokens":1`
	answer, tr := decodeAll(t, []string{raw})
	if answer != "The answer." {
		t.Errorf("answer corrupted: %q", answer)
	}
	if tr.Usage != nil {
		t.Errorf("truncated usage should be dropped, got %+v", tr.Usage)
	}
}

func TestDecode_ProseResemblingMarker(t *testing.T) {
	// A newline followed by @-runs in prose must survive as answer text.
	raw := "See the\n@@@ bullet notation below.\nDone." + EncodeUsage(adapter.Usage{CompletionTokens: 9})
	answer, tr := decodeAll(t, []string{raw})
	if answer != "See the\n@@@ bullet notation below.\nDone." {
		t.Errorf("answer: %q", answer)
	}
	if tr.Usage == nil || tr.Usage.CompletionTokens != 9 {
		t.Errorf("usage: %+v", tr.Usage)
	}
}

func TestFeed_DoesNotLeakTrailerText(t *testing.T) {
	var d Decoder
	shown := d.Feed("answer" + EncodeUsage(adapter.Usage{PromptTokens: 5}))
	if strings.Contains(shown, "@@@") {
		t.Errorf("trailer text leaked into display: %q", shown)
	}
	if shown != "answer" {
		t.Errorf("shown: %q", shown)
	}
}

func TestFeed_HoldsBackPartialMarkerOnly(t *testing.T) {
	var d Decoder
	shown := d.Feed("complete sentence.\n")
	// The trailing newline could open a marker, so it may be withheld,
	// but everything before it must be released immediately.
	if !strings.HasPrefix("complete sentence.\n", shown) || len(shown) < len("complete sentence.") {
		t.Errorf("too much withheld: %q", shown)
	}
	rest, _ := d.Finalize()
	if shown+rest != "complete sentence.\n" {
		t.Errorf("text lost: %q + %q", shown, rest)
	}
}

func TestEncodeMemory_FieldNames(t *testing.T) {
	seg := EncodeMemory(convo.State{Summary: "x", SummarizedThrough: 2})
	if !strings.Contains(seg, `"summarizedThroughIndex":2`) {
		t.Errorf("watermark field missing: %q", seg)
	}
}
