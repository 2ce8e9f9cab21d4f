package extract

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"phylogen/internal/beastgen"
	"phylogen/internal/xmltree"
)

const configText = "model lexicon:\n  type: mk\n  data: data.csv\n"

func testDocument() string {
	root := xmltree.NewElement("beast", "version", "2.0")
	root.CommentNode("Generated by phylogen test on Thu, 01 Jan 1970 00:00:00 UTC")
	root.CommentNode(beastgen.ConfigMarker + configText)
	root.CommentNode(beastgen.EmbeddedMarker + "/home/someone/data.csv\niso,f1\neng,1\n")
	return xmltree.String(root)
}

func TestRead(t *testing.T) {
	res, err := Read(strings.NewReader(testDocument()))
	if err != nil {
		t.Fatal(err)
	}
	if res.ConfigText != configText {
		t.Errorf("ConfigText = %q, want %q", res.ConfigText, configText)
	}
	got, ok := res.DataFiles["/home/someone/data.csv"]
	if !ok {
		t.Fatalf("embedded file missing, have %v", res.DataFiles)
	}
	if got != "iso,f1\neng,1\n" {
		t.Errorf("embedded contents = %q", got)
	}
}

func TestReadDashedConfigText(t *testing.T) {
	// YAML document markers and double dashes must come back byte for byte.
	text := "---\n# calibrated -- see notes --\nmodel lexicon:\n  type: mk\n"
	root := xmltree.NewElement("beast", "version", "2.0")
	root.CommentNode(beastgen.ConfigMarker + text)
	root.CommentNode(beastgen.EmbeddedMarker + "notes.csv\niso,f1\neng,--\n")

	res, err := Read(strings.NewReader(xmltree.String(root)))
	if err != nil {
		t.Fatal(err)
	}
	if res.ConfigText != text {
		t.Errorf("ConfigText = %q, want %q", res.ConfigText, text)
	}
	if got := res.DataFiles["notes.csv"]; got != "iso,f1\neng,--\n" {
		t.Errorf("embedded contents = %q", got)
	}
}

func TestReadNoProvenance(t *testing.T) {
	doc := xmltree.String(xmltree.NewElement("beast", "version", "2.0"))
	_, err := Read(strings.NewReader(doc))
	if !errors.Is(err, ErrNoProvenance) {
		t.Errorf("want ErrNoProvenance, got %v", err)
	}
}

func TestWrite(t *testing.T) {
	res, err := Read(strings.NewReader(testDocument()))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	written, err := res.Write(dir, "restored.yaml", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 2 {
		t.Fatalf("wrote %d files, want 2", len(written))
	}
	data, err := os.ReadFile(filepath.Join(dir, "restored.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != configText {
		t.Errorf("restored config = %q", data)
	}
	// Embedded paths are flattened to their base name.
	if _, err := os.Stat(filepath.Join(dir, "data.csv")); err != nil {
		t.Errorf("embedded file not written: %v", err)
	}
}

func TestWriteRefusesExisting(t *testing.T) {
	res := &Result{ConfigText: "x", DataFiles: map[string]string{}}
	dir := t.TempDir()
	path := filepath.Join(dir, "restored.yaml")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := res.Write(dir, "restored.yaml", false); err == nil {
		t.Error("existing file should be refused without overwrite")
	}
	if _, err := res.Write(dir, "restored.yaml", true); err != nil {
		t.Errorf("overwrite failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "x" {
		t.Errorf("file not overwritten: %q", data)
	}
}
