package llm

import "testing"

type sqlReply struct {
	GeneratedSQL string `json:"generated_sql"`
}

func TestDecodeLooseValidJSON(t *testing.T) {
	var out sqlReply
	if err := DecodeLoose(`{"generated_sql": "SELECT 1"}`, &out); err != nil {
		t.Fatalf("DecodeLoose() error = %v", err)
	}
	if out.GeneratedSQL != "SELECT 1" {
		t.Fatalf("GeneratedSQL = %q", out.GeneratedSQL)
	}
}

func TestDecodeLooseFencedJSON(t *testing.T) {
	var out sqlReply
	raw := "```json\n{\"generated_sql\": \"SELECT 2\"}\n```"
	if err := DecodeLoose(raw, &out); err != nil {
		t.Fatalf("DecodeLoose() error = %v", err)
	}
	if out.GeneratedSQL != "SELECT 2" {
		t.Fatalf("GeneratedSQL = %q", out.GeneratedSQL)
	}
}

func TestDecodeLooseJSONEmbeddedInProse(t *testing.T) {
	var out sqlReply
	raw := `Here is the query you asked for: {"generated_sql": "SELECT 3"} hope that helps.`
	if err := DecodeLoose(raw, &out); err != nil {
		t.Fatalf("DecodeLoose() error = %v", err)
	}
	if out.GeneratedSQL != "SELECT 3" {
		t.Fatalf("GeneratedSQL = %q", out.GeneratedSQL)
	}
}

func TestDecodeLooseBracesInsideStrings(t *testing.T) {
	var out sqlReply
	raw := `prefix {"generated_sql": "SELECT '{a}' FROM t"} suffix`
	if err := DecodeLoose(raw, &out); err != nil {
		t.Fatalf("DecodeLoose() error = %v", err)
	}
	if out.GeneratedSQL != "SELECT '{a}' FROM t" {
		t.Fatalf("GeneratedSQL = %q", out.GeneratedSQL)
	}
}

func TestDecodeLooseRepairsTruncatedJSON(t *testing.T) {
	var out sqlReply
	raw := `{"generated_sql": "SELECT 4"`
	if err := DecodeLoose(raw, &out); err != nil {
		t.Fatalf("DecodeLoose() error = %v", err)
	}
	if out.GeneratedSQL != "SELECT 4" {
		t.Fatalf("GeneratedSQL = %q", out.GeneratedSQL)
	}
}

func TestDecodeLooseArray(t *testing.T) {
	var out []int
	raw := "the ids are [1, 2, 3]"
	if err := DecodeLoose(raw, &out); err != nil {
		t.Fatalf("DecodeLoose() error = %v", err)
	}
	if len(out) != 3 || out[2] != 3 {
		t.Fatalf("out = %v", out)
	}
}

func TestDecodeLooseRejectsEmpty(t *testing.T) {
	var out sqlReply
	if err := DecodeLoose("   ", &out); err == nil {
		t.Fatal("DecodeLoose() expected error for empty reply")
	}
}
