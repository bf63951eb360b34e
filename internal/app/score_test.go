package app

import "testing"

func TestParseIDList(t *testing.T) {
	t.Parallel()

	ids, err := parseIDList(" 1, 2,3 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("unexpected ids: %v", ids)
	}

	if ids, err := parseIDList(""); err != nil || ids != nil {
		t.Fatalf("empty input should yield nil, nil; got %v, %v", ids, err)
	}

	for _, raw := range []string{"a", "1,,2", "0", "-3", "1,2,x"} {
		if _, err := parseIDList(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
