package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPrintTables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "listing.html")
	page := `<html><body>
<table>
	<tr><th>ISIN</th><th>Nome</th></tr>
	<tr><td>IT0006771510</td><td>Phoenix Memory su FTSE MIB</td></tr>
	<tr><td>DE000VU5FFT5</td><td>Bonus Cap su Enel</td></tr>
</table>
<table><tr><td>Tipo barriera</td><td>Discreta</td></tr><tr><td>Barriera</td><td>60%</td></tr></table>
</body></html>`
	if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := printTables(&buf, []string{path}); err != nil {
		t.Fatalf("printTables: %v", err)
	}
	out := buf.String()
	lower := strings.ToLower(out)

	for _, want := range []string{"listing.html #1, 3 rows", "listing.html #2, 2 rows", "IT0006771510", "Bonus Cap su Enel", "Tipo barriera", "Discreta"} {
		if !strings.Contains(out, want) && !strings.Contains(lower, strings.ToLower(want)) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// Cells of one row share a line.
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "DE000VU5FFT5") && !strings.Contains(line, "Bonus Cap su Enel") {
			t.Errorf("row split across lines: %q", line)
		}
	}

	if err := printTables(&buf, []string{filepath.Join(dir, "missing.html")}); err == nil {
		t.Error("expected an error for a missing file")
	}
}
