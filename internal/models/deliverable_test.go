package models

import "testing"

func TestDeliverableRefRoundtrip(t *testing.T) {
	ref := DeliverableRef{OriginalCID: "QmOriginal", PreviewCID: "QmPreview"}
	encoded := ref.Encode()
	if encoded != "QmOriginal:QmPreview" {
		t.Fatalf("Encode() = %q", encoded)
	}

	parsed, err := ParseDeliverableRef(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if parsed != ref {
		t.Errorf("roundtrip: got %+v, want %+v", parsed, ref)
	}
}

func TestParseDeliverableRefBareCID(t *testing.T) {
	parsed, err := ParseDeliverableRef("QmOnly")
	if err != nil {
		t.Fatal(err)
	}
	if parsed.OriginalCID != "QmOnly" || parsed.PreviewCID != "QmOnly" {
		t.Errorf("bare cid: got %+v", parsed)
	}
}

func TestParseDeliverableRefErrors(t *testing.T) {
	for _, in := range []string{"", "   ", ":QmPreview"} {
		if _, err := ParseDeliverableRef(in); err == nil {
			t.Errorf("ParseDeliverableRef(%q) accepted", in)
		}
	}
}

func TestEncodeEmptyRef(t *testing.T) {
	if got := (DeliverableRef{}).Encode(); got != "" {
		t.Errorf("Encode() = %q, want empty", got)
	}
}
