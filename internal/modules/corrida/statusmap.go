// README: Legacy status values mapped to the financial-review vocabulary.
package corrida

// MapFinanceStatus translates whatever status a row carries into the canonical
// vocabulary the conference screen works with. Total and idempotent: every
// input maps somewhere, and mapping twice equals mapping once.
func MapFinanceStatus(s Status) Status {
	switch s {
	case StatusOSPreenchida, StatusPendente, StatusAguardandoConferencia:
		return StatusAguardandoConferencia
	case StatusAprovada:
		return StatusAprovada
	case StatusNoShow:
		return StatusNoShow
	case StatusRejeitada, StatusRevisar:
		return StatusRevisar
	case StatusCancelada:
		return StatusCancelada
	default:
		return StatusEmAnalise
	}
}
