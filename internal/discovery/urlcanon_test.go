package discovery

import "testing"

func TestParseDocumentIDFromHref(t *testing.T) {
	cases := []struct {
		href string
		want string
		ok   bool
	}{
		{"/epstein/files/DataSet%2011/EFTA02205655.pdf", "EFTA02205655", true},
		{"https://www.justice.gov/epstein/files/DataSet 11/EFTA02205656.pdf", "EFTA02205656", true},
		{"/epstein/doj-disclosures/data-set-11-files?page=3", "", false},
		{"/other/path/file.pdf", "", false},
	}
	for _, c := range cases {
		got, ok := ParseDocumentIDFromHref(c.href, "EFTA")
		if ok != c.ok || got != c.want {
			t.Errorf("ParseDocumentIDFromHref(%q) = (%q, %v), want (%q, %v)", c.href, got, ok, c.want, c.ok)
		}
	}
}

func TestBuildLocalPath(t *testing.T) {
	got, err := BuildLocalPath("/data", 11, "EFTA02205655", "EFTA")
	if err != nil {
		t.Fatal(err)
	}
	want := "/data/DataSet11/022/EFTA02205655.pdf"
	if got != want {
		t.Errorf("BuildLocalPath = %q, want %q", got, want)
	}
}

func TestBuildDocumentURL(t *testing.T) {
	got := BuildDocumentURL("https://www.justice.gov/epstein/files/DataSet%2011/", "EFTA02205655")
	want := "https://www.justice.gov/epstein/files/DataSet%2011/EFTA02205655.pdf"
	if got != want {
		t.Errorf("BuildDocumentURL = %q, want %q", got, want)
	}
}

func TestBuildIndexURL(t *testing.T) {
	base := "https://www.justice.gov/epstein/doj-disclosures/data-set-11-files"
	if got := BuildIndexURL(base, 0); got != base {
		t.Errorf("page 0 = %q, want %q", got, base)
	}
	if got := BuildIndexURL(base, 5); got != base+"?page=5" {
		t.Errorf("page 5 = %q", got)
	}
}

func TestDocumentIDZeroPads(t *testing.T) {
	if got := DocumentID("EFTA", 2205655); got != "EFTA02205655" {
		t.Errorf("DocumentID = %q, want EFTA02205655", got)
	}
}
