// README: Pure transition logic: operation guards and derived-status inference.
package corrida

import "strings"

// Operation names every caller intent that moves a ride through its lifecycle.
type Operation string

const (
	OpCreate      Operation = "create"
	OpAssignar    Operation = "assign_driver"
	OpPreencherOS Operation = "fill_service_order"
	OpAprovar     Operation = "approve"
	OpRejeitar    Operation = "reject"
	OpOverride    Operation = "set_status"
	OpExcluir     Operation = "delete"
	OpEditar      Operation = "update"
)

// guard lists the legal source states and the roles allowed to trigger an
// operation. A nil from set means the operation is not state-guarded.
type guard struct {
	from  []Status
	roles []Role
}

var opGuards = map[Operation]guard{
	OpCreate: {
		roles: []Role{RoleAdmin},
	},
	OpAssignar: {
		from:  []Status{StatusSelecionarMotorista},
		roles: []Role{RoleAdmin},
	},
	OpPreencherOS: {
		from:  []Status{StatusAguardandoOS, StatusPendente},
		roles: []Role{RoleMotorista, RoleOperador, RoleAdmin},
	},
	OpAprovar: {
		from:  []Status{StatusAguardandoConferencia},
		roles: []Role{RoleFinanceiro, RoleAdmin},
	},
	OpRejeitar: {
		from:  []Status{StatusAguardandoConferencia},
		roles: []Role{RoleFinanceiro, RoleAdmin},
	},
	OpOverride: {
		roles: []Role{RoleFinanceiro, RoleAdmin},
	},
	OpExcluir: {
		roles: []Role{RoleAdmin},
	},
	OpEditar: {
		roles: []Role{RoleAdmin, RoleOperador, RoleFinanceiro},
	},
}

// Guard validates an operation against the current status and the actor role.
// It returns ErrForbidden before ErrInvalidTransition so a caller without the
// role never learns the ride's state.
func Guard(op Operation, from Status, role Role) error {
	g, ok := opGuards[op]
	if !ok {
		return ErrInvalidTransition
	}
	if !roleAllowed(g.roles, role) {
		return ErrForbidden
	}
	if g.from == nil {
		return nil
	}
	for _, s := range g.from {
		if s == from {
			return nil
		}
	}
	return ErrInvalidTransition
}

func roleAllowed(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// InitialStatus computes the status of a freshly dispatched ride from driver
// presence: a named driver skips the selection step.
func InitialStatus(motorista string) Status {
	if strings.TrimSpace(motorista) == "" {
		return StatusSelecionarMotorista
	}
	return StatusAguardandoOS
}

// earlyStatuses are the states where a generic edit may still reassign or
// unassign the driver without the caller spelling out a lifecycle transition.
var earlyStatuses = map[Status]struct{}{
	StatusSelecionarMotorista: {},
	StatusPendente:            {},
	StatusAguardandoOS:        {},
}

// DeriveStatus infers a status change from a driver-presence delta on an edit
// that did not set status explicitly. It only acts while the ride is in an
// early state; later states never move on a driver edit. The second return
// reports whether an inference was made.
func DeriveStatus(current Status, oldMotorista, newMotorista string) (Status, bool) {
	if _, early := earlyStatuses[current]; !early {
		return current, false
	}
	had := strings.TrimSpace(oldMotorista) != ""
	has := strings.TrimSpace(newMotorista) != ""
	switch {
	case !had && has:
		return StatusAguardandoOS, true
	case had && !has:
		return StatusSelecionarMotorista, true
	}
	return current, false
}
