package corrida

import "testing"

func TestMapFinanceStatus(t *testing.T) {
	cases := []struct {
		in   Status
		want Status
	}{
		{StatusOSPreenchida, StatusAguardandoConferencia},
		{StatusPendente, StatusAguardandoConferencia},
		{StatusAguardandoConferencia, StatusAguardandoConferencia},
		{StatusAprovada, StatusAprovada},
		{StatusNoShow, StatusNoShow},
		{StatusRejeitada, StatusRevisar},
		{StatusRevisar, StatusRevisar},
		{StatusCancelada, StatusCancelada},
		// everything outside the conference vocabulary lands in Em Análise
		{StatusSelecionarMotorista, StatusEmAnalise},
		{StatusAguardandoOS, StatusEmAnalise},
		{StatusEmAnalise, StatusEmAnalise},
		{Status("valor legado desconhecido"), StatusEmAnalise},
		{Status(""), StatusEmAnalise},
	}
	for _, tc := range cases {
		if got := MapFinanceStatus(tc.in); got != tc.want {
			t.Errorf("MapFinanceStatus(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// Mapping is idempotent: a mapped value maps to itself.
func TestMapFinanceStatusIdempotent(t *testing.T) {
	for s := range canonicalStatuses {
		once := MapFinanceStatus(s)
		if twice := MapFinanceStatus(once); twice != once {
			t.Errorf("MapFinanceStatus not idempotent for %q: %q then %q", s, once, twice)
		}
	}
}
