// README: Corrida aggregate, status vocabulary and role definitions.
package corrida

import (
	"time"

	"primetransportes/internal/types"
)

type Status string

const (
	// Dispatch flow.
	StatusSelecionarMotorista Status = "Selecionar Motorista"
	StatusAguardandoOS        Status = "Aguardando OS"

	// Financial flow.
	StatusAguardandoConferencia Status = "Aguardando Conferência"
	StatusAprovada              Status = "Aprovada"
	StatusRevisar               Status = "Revisar"
	StatusRejeitada             Status = "Rejeitada"
	StatusEmAnalise             Status = "Em Análise"

	// Terminal without execution.
	StatusCancelada Status = "Cancelada"
	StatusNoShow    Status = "No Show"

	// Legacy values still present in older rows.
	StatusPendente     Status = "Pendente"
	StatusOSPreenchida Status = "OS Preenchida"
)

// canonicalStatuses is the closed vocabulary a ride may carry. Writes outside
// this set are rejected even on the administrative override path.
var canonicalStatuses = map[Status]struct{}{
	StatusSelecionarMotorista:   {},
	StatusAguardandoOS:          {},
	StatusAguardandoConferencia: {},
	StatusAprovada:              {},
	StatusRevisar:               {},
	StatusRejeitada:             {},
	StatusEmAnalise:             {},
	StatusCancelada:             {},
	StatusNoShow:                {},
	StatusPendente:              {},
	StatusOSPreenchida:          {},
}

func ValidStatus(s Status) bool {
	_, ok := canonicalStatuses[s]
	return ok
}

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleFinanceiro Role = "financeiro"
	RoleMotorista  Role = "motorista"
	RoleOperador   Role = "operador"
)

// Anexo is a document reference attached to a ride; the blob itself lives in
// external storage.
type Anexo struct {
	ID        int64
	CorridaID types.ID
	Nome      string
	Descricao string
	URL       string
}

type Corrida struct {
	ID types.ID

	// Parties.
	Solicitante string
	Empresa     string
	EmpresaID   int64
	Motorista   string // empty means no driver assigned yet
	Veiculo     string

	// Itinerary.
	Origem      string
	Destino     string
	PontoExtra  string
	DataServico time.Time
	HoraInicio  string
	HoraChegada string
	DistanciaKM float64
	TempoViagem string

	// Lifecycle.
	Status                  Status
	MotivoRejeicao          string
	NumeroOS                string // assigned once, immutable afterwards
	PreenchidoPorMotorista  bool
	PreenchidoPorFinanceiro bool

	// Costs.
	ValorBase      types.Money
	ValorMotorista types.Money
	Pedagio        types.Money
	Estacionamento types.Money
	Hospedagem     types.Money
	HorasEspera    types.Money
	Total          types.Money

	Anexos []Anexo

	CriadoEm     time.Time
	AtualizadoEm time.Time
}

// TemMotorista reports whether a driver name is set. The lifecycle invariant
// ties this to StatusSelecionarMotorista: no driver if and only if the ride is
// still waiting for selection (administrative overrides excepted).
func (c *Corrida) TemMotorista() bool {
	return c.Motorista != ""
}

// clone returns a deep copy so readers never share the cached slice headers.
func (c *Corrida) clone() Corrida {
	out := *c
	if c.Anexos != nil {
		out.Anexos = make([]Anexo, len(c.Anexos))
		copy(out.Anexos, c.Anexos)
	}
	return out
}
