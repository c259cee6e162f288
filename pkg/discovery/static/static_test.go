package static

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"db1:3306", []string{"db1:3306"}},
		{" db1:3306 , db2:3306 ", []string{"db1:3306", "db2:3306"}},
		{",,db1:3306, ,db2:3306,", []string{"db1:3306", "db2:3306"}},
	}
	for _, c := range cases {
		got := Parse(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("len mismatch for %q: got %d want %d", c.in, len(got), len(c.want))
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("[%q] item %d: got %q want %q", c.in, i, got[i], c.want[i])
			}
		}
	}
}

func TestNew(t *testing.T) {
	d := New(" db1:3306 ", "", "db2:3306")
	got := d.Addrs()
	if len(got) != 2 || got[0] != "db1:3306" || got[1] != "db2:3306" {
		t.Fatalf("unexpected addrs: %#v", got)
	}
	// Ensure returned slice is a copy
	got[0] = "x"
	got2 := d.Addrs()
	if got2[0] != "db1:3306" {
		t.Fatalf("expected defensive copy, got %#v", got2)
	}
}
