package tag_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"trackfit/internal/domain"
	"trackfit/internal/tag"
)

func TestRenderFieldOrder(t *testing.T) {
	text := tag.Render(tag.Payload{
		UID:          "EC25A10120042",
		Type:         domain.MaterialElasticClip,
		VendorLot:    "LOT-7",
		MfgDate:      "2025-01-01",
		ExpiryDate:   "2029-12-31",
		WarrantyDays: 1825,
	})
	want := "UID:EC25A10120042;Type:elastic_clip;VendorLot:LOT-7;MfgDate:2025-01-01;ExpiryDate:2029-12-31;WarrantyDays:1825"
	if text != want {
		t.Fatalf("got %q\nwant %q", text, want)
	}
}

func TestParseRoundTrip(t *testing.T) {
	in := tag.Payload{
		UID:          "SL25A10010001",
		Type:         domain.MaterialSleeper,
		VendorLot:    "LOT-1",
		MfgDate:      "2025-01-01",
		ExpiryDate:   "2029-12-31",
		WarrantyDays: 1825,
	}
	out, err := tag.Parse(tag.Render(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out != in {
		t.Fatalf("round trip %+v, want %+v", out, in)
	}
}

func TestParseToleratesUnknownKeys(t *testing.T) {
	p, err := tag.Parse("UID:RP25A10030007;Type:rail_pad;Extra:ignored")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.UID != "RP25A10030007" || p.Type != domain.MaterialRailPad {
		t.Fatalf("parsed %+v", p)
	}
}

func TestParseMalformed(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"no separators here",
		"Type:liner;VendorLot:x", // missing UID
		"UID:X;WarrantyDays:soon",
	}
	for _, in := range cases {
		if _, err := tag.Parse(in); !errors.Is(err, tag.ErrMalformedPayload) {
			t.Fatalf("%q: err %v, want ErrMalformedPayload", in, err)
		}
	}
}

func TestExtractUID(t *testing.T) {
	uid, err := tag.ExtractUID("UID:LN25A10050009;Type:liner")
	if err != nil || uid != "LN25A10050009" {
		t.Fatalf("uid=%q err=%v", uid, err)
	}
	if _, err := tag.ExtractUID("Type:liner"); !errors.Is(err, tag.ErrMalformedPayload) {
		t.Fatalf("err %v, want ErrMalformedPayload", err)
	}
}

func TestFileRendererWritesArtifact(t *testing.T) {
	dir := t.TempDir()
	r := tag.FileRenderer{Dir: dir}
	ref, err := r.Render("EC25A10120042", "UID:EC25A10120042;Type:elastic_clip")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if ref != filepath.Join(dir, "TAG_EC25A10120042.txt") {
		t.Fatalf("ref %q", ref)
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !strings.HasPrefix(string(data), "UID:EC25A10120042") {
		t.Fatalf("artifact %q", data)
	}
}

func TestTextDecoder(t *testing.T) {
	text, err := tag.TextDecoder{}.Decode(strings.NewReader("UID:X;Type:liner"))
	if err != nil || text != "UID:X;Type:liner" {
		t.Fatalf("text=%q err=%v", text, err)
	}
	if _, err := (tag.TextDecoder{}).Decode(strings.NewReader("")); !errors.Is(err, tag.ErrNotDetected) {
		t.Fatalf("err %v, want ErrNotDetected", err)
	}
}
