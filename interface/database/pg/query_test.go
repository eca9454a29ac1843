package pg

import (
	"reflect"
	"testing"
)

func TestWhereClause(t *testing.T) {
	w := whereClause{}
	if w.String() != "" {
		t.Errorf("empty clause expected, got %q", w.String())
	}
	w.match("id", "auig2-*")
	w.equal("source", "auig2")
	w.match("id", "URL-?(?i)")
	w.match("id", "md_1")

	expected := " WHERE id LIKE $1 AND source = $2 AND id ILIKE $3 AND id = $4"
	if w.String() != expected {
		t.Errorf("expected %q, got %q", expected, w.String())
	}
	if !reflect.DeepEqual(w.params, []interface{}{"auig2-%", "auig2", "URL-_", "md_1"}) {
		t.Errorf("unexpected params %v", w.params)
	}
}

func TestLikePattern(t *testing.T) {
	for in, expected := range map[string]string{
		"ALOS2*-180918-*": `ALOS2%-180918-%`,
		"WBDR1.1__D?":     `WBDR1.1\_\_D_`,
		"100%":            `100\%`,
		`a\b*`:            `a\\b%`,
	} {
		if out, _ := likePattern(in); out != expected {
			t.Errorf("%s: expected %s, got %s", in, expected, out)
		}
	}
	if _, wildcard := likePattern("ALOS2_no_wildcard"); wildcard {
		t.Error("no wildcard expected")
	}
}

func TestPagination(t *testing.T) {
	for _, tc := range []struct {
		page, limit int
		expected    string
	}{
		{0, 0, ""},
		{3, 0, ""},
		{0, 10, " LIMIT 10"},
		{2, 10, " LIMIT 10 OFFSET 20"},
	} {
		if out := pagination(tc.page, tc.limit); out != tc.expected {
			t.Errorf("page %d limit %d: expected %q, got %q", tc.page, tc.limit, tc.expected, out)
		}
	}
}
