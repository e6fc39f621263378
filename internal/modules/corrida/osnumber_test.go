package corrida

import "testing"

func TestNextOSNumber(t *testing.T) {
	cases := []struct {
		name     string
		corridas []Corrida
		want     string
	}{
		{"empty set starts at one", nil, "00001"},
		{"no numbers assigned yet", []Corrida{{}, {}}, "00001"},
		{"max plus one", []Corrida{{NumeroOS: "00007"}, {NumeroOS: "00003"}}, "00008"},
		{"gaps are not reused", []Corrida{{NumeroOS: "00001"}, {NumeroOS: "00009"}}, "00010"},
		{"non-numeric values skipped", []Corrida{{NumeroOS: "OS-antiga"}, {NumeroOS: "00004"}}, "00005"},
		{"whitespace treated as unassigned", []Corrida{{NumeroOS: "  "}, {NumeroOS: "00002"}}, "00003"},
		{"grows past five digits", []Corrida{{NumeroOS: "99999"}}, "100000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextOSNumber(tc.corridas); got != tc.want {
				t.Errorf("NextOSNumber() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMaxOSNumber(t *testing.T) {
	corridas := []Corrida{
		{NumeroOS: "00012"},
		{NumeroOS: ""},
		{NumeroOS: "lixo"},
		{NumeroOS: "00005"},
	}
	if got := MaxOSNumber(corridas); got != 12 {
		t.Errorf("MaxOSNumber() = %d, want 12", got)
	}
	if got := MaxOSNumber(nil); got != 0 {
		t.Errorf("MaxOSNumber(nil) = %d, want 0", got)
	}
}
