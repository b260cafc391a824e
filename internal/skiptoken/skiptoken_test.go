package skiptoken

import "testing"

func TestParse(t *testing.T) {
	tok, err := Parse("Paged=TRUE&p_ID=42&p_Modified=20240305%2010%3a00%3a00")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !tok.Paged {
		t.Error("expected Paged")
	}
	if id, ok := tok.LastID(); !ok || id != 42 {
		t.Errorf("LastID = %d, %v; want 42, true", id, ok)
	}
	if got := tok.Fields["p_Modified"]; got != "20240305 10:00:00" {
		t.Errorf("p_Modified = %q", got)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse("p_ID=%zz"); err == nil {
		t.Error("expected error for bad escape")
	}
}

func TestLastIDMissingOrInvalid(t *testing.T) {
	for _, raw := range []string{"Paged=TRUE", "Paged=TRUE&p_ID=abc"} {
		tok, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", raw, err)
		}
		if _, ok := tok.LastID(); ok {
			t.Errorf("LastID of %q should not be ok", raw)
		}
	}
}

func TestFromURL(t *testing.T) {
	tests := []struct {
		name   string
		link   string
		wantOK bool
		wantID int
	}{
		{
			name:   "encoded token",
			link:   "https://contoso.sharepoint.com/_api/web/lists/GetByTitle('Tasks')/Items?$skiptoken=Paged%3DTRUE%26p_ID%3D2&$top=2",
			wantOK: true,
			wantID: 2,
		},
		{
			name: "no token",
			link: "https://contoso.sharepoint.com/_api/web/lists?$top=2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, ok, err := FromURL(tt.link)
			if err != nil {
				t.Fatalf("FromURL failed: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if id, _ := tok.LastID(); id != tt.wantID {
				t.Errorf("LastID = %d, want %d", id, tt.wantID)
			}
		})
	}
}

func TestString(t *testing.T) {
	a, _ := Parse("p_ID=2&Paged=TRUE&p_Title=A%26B")
	b, _ := Parse("Paged=TRUE&p_Title=A%26B&p_ID=2")
	if a.String() != b.String() {
		t.Errorf("String not stable: %q vs %q", a.String(), b.String())
	}
	if want := "Paged=TRUE&p_ID=2&p_Title=A%26B"; a.String() != want {
		t.Errorf("String = %q, want %q", a.String(), want)
	}
}
