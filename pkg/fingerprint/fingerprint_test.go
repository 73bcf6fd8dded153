package fingerprint

import "testing"

func TestFingerprintStringLiteral(t *testing.T) {
	got := Fingerprint("SELECT * FROM users WHERE name = 'alice'")
	want := "SELECT * FROM users WHERE name = $S"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFingerprintNumericLiteral(t *testing.T) {
	got := Fingerprint("SELECT 1;")
	want := "SELECT $N;"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFingerprintMixed(t *testing.T) {
	got := Fingerprint("UPDATE orders SET status = 'shipped' WHERE id = 123 AND price > 9.99")
	want := "UPDATE orders SET status = $S WHERE id = $N AND price > $N"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFingerprintInList(t *testing.T) {
	got := Fingerprint("SELECT * FROM t WHERE id IN (1, 2, 3)")
	want := "SELECT * FROM t WHERE id IN ($...)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFingerprintQuotedIdentifierPreserved(t *testing.T) {
	got := Fingerprint(`SELECT "User Id" FROM t WHERE x = 5`)
	want := `SELECT "User Id" FROM t WHERE x = $N`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFingerprintEscapedQuotes(t *testing.T) {
	got := Fingerprint(`SELECT * FROM t WHERE name = 'it''s a test'`)
	want := `SELECT * FROM t WHERE name = $S`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFingerprintEscapeString(t *testing.T) {
	got := Fingerprint(`SELECT * FROM t WHERE name = E'tab\there'`)
	want := `SELECT * FROM t WHERE name = $S`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFingerprintPositionalParamsPreserved(t *testing.T) {
	got := Fingerprint("SELECT * FROM t WHERE id = $1 AND name = $2")
	want := "SELECT * FROM t WHERE id = $1 AND name = $2"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFingerprintStripsComments(t *testing.T) {
	got := Fingerprint("SELECT 1 -- trailing comment\nFROM t /* block */ WHERE id = 2")
	want := "SELECT $N FROM t WHERE id = $N"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFingerprintCollapsesWhitespace(t *testing.T) {
	got := Fingerprint("SELECT   1\n\tFROM    t")
	want := "SELECT $N FROM t"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFingerprintCaseNotLowercased(t *testing.T) {
	got := Fingerprint("SeLeCt 1")
	want := "SeLeCt $N"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	sql := "SELECT * FROM t WHERE id IN (1, 2, 3) AND name = 'x'"
	a := Fingerprint(sql)
	b := Fingerprint(sql)
	if a != b {
		t.Fatalf("fingerprint not deterministic: %q vs %q", a, b)
	}
	if Fingerprint(a) != a {
		t.Fatalf("fingerprint not idempotent: fp(fp(x))=%q, fp(x)=%q", Fingerprint(a), a)
	}
}

func TestFingerprintAggregationEquivalence(t *testing.T) {
	a := Fingerprint("SELECT * FROM t WHERE id=1")
	b := Fingerprint("SELECT * FROM t WHERE id=2")
	if a != b {
		t.Fatalf("expected equal fingerprints, got %q and %q", a, b)
	}
}

func TestTableMemoizesAndEvicts(t *testing.T) {
	tbl := NewTable(2)
	tbl.Get("SELECT 1")
	tbl.Get("SELECT 2")
	if tbl.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", tbl.Len())
	}
	tbl.Get("SELECT 3")
	if tbl.Len() != 2 {
		t.Fatalf("expected capacity held at 2, got %d", tbl.Len())
	}
}
