// README: Corrida service: single writer of the in-memory ride collection,
// guarded lifecycle mutations, optimistic patching and wholesale reload.
package corrida

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"primetransportes/internal/types"
)

var (
	ErrNotFound          = errors.New("corrida not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("operation not allowed for role")
	ErrBadRequest        = errors.New("bad request")
	ErrInvalidStatus     = errors.New("status outside canonical vocabulary")
	ErrOSAssigned        = errors.New("numero OS already assigned")
)

// Uploader stores attachment content and returns a storage pointer.
type Uploader interface {
	Upload(ctx context.Context, nome string, conteudo io.Reader) (string, error)
}

// AuditEvent records a lifecycle transition. Override marks writes that went
// through the administrative path instead of the guarded table.
type AuditEvent struct {
	CorridaID types.ID
	Operacao  Operation
	De        Status
	Para      Status
	Ator      string
	Role      Role
	Override  bool
	CriadoEm  time.Time
}

// AuditSink publishes transition events. Best-effort: failures are logged and
// never fail the owning mutation.
type AuditSink interface {
	Publish(ctx context.Context, e AuditEvent) error
}

type ServiceDeps struct {
	Store    RemoteStore
	Sequence SequenceAllocator // optional; falls back to snapshot scan
	Uploader Uploader          // optional
	Audit    AuditSink         // optional
	Log      *zap.Logger
}

// Service owns the canonical in-memory ride collection. All mutations pass
// through it; readers receive copies. wmu serializes writers across the remote
// round trip, replacing the event-loop ordering of a browser client. mu only
// guards the slice, so readers never wait on the network.
type Service struct {
	store    RemoteStore
	seq      SequenceAllocator
	uploader Uploader
	audit    AuditSink
	log      *zap.Logger

	wmu sync.Mutex
	mu  sync.RWMutex

	corridas     []Corrida
	loading      bool
	lastSyncedAt time.Time
}

func NewService(d ServiceDeps) *Service {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    d.Store,
		seq:      d.Sequence,
		uploader: d.Uploader,
		audit:    d.Audit,
		log:      log,
	}
}

type CreateCommand struct {
	Role Role
	Ator string

	Solicitante string
	Empresa     string
	EmpresaID   int64
	Motorista   string
	Veiculo     string
	Origem      string
	Destino     string
	PontoExtra  string
	DataServico time.Time
	ValorBase   types.Money
}

type AssignDriverCommand struct {
	Role Role
	Ator string

	ID        types.ID
	Motorista string
	Veiculo   string
}

type AnexoUpload struct {
	Nome      string
	Descricao string
	Conteudo  io.Reader
}

type FillOSCommand struct {
	Role Role
	Ator string

	ID             types.ID
	HoraInicio     string
	HoraChegada    string
	DistanciaKM    float64
	TempoViagem    string
	ValorMotorista types.Money
	Pedagio        types.Money
	Estacionamento types.Money
	Hospedagem     types.Money
	HorasEspera    types.Money
	Anexos         []AnexoUpload
}

// AnexoFalha is a per-file upload failure. Attachment errors are isolated and
// reported individually; they never abort the ride mutation.
type AnexoFalha struct {
	Nome string
	Err  error
}

type FillResult struct {
	NumeroOS    string
	AnexoFalhas []AnexoFalha
}

type ApproveCommand struct {
	Role Role
	Ator string
	ID   types.ID
}

type RejectCommand struct {
	Role   Role
	Ator   string
	ID     types.ID
	Motivo string
}

type SetStatusCommand struct {
	Role   Role
	Ator   string
	ID     types.ID
	Status Status
}

type DeleteCommand struct {
	Role Role
	Ator string
	ID   types.ID
}

type UpdateCommand struct {
	Role Role
	Ator string
	ID   types.ID

	// nil leaves the field unchanged.
	Solicitante *string
	Empresa     *string
	EmpresaID   *int64
	Motorista   *string
	Veiculo     *string
	Origem      *string
	Destino     *string
	PontoExtra  *string
	DataServico *time.Time
	HoraInicio  *string
	HoraChegada *string
	DistanciaKM *float64
	TempoViagem *string

	Status         *Status
	MotivoRejeicao *string
	NumeroOS       *string

	ValorBase      *types.Money
	ValorMotorista *types.Money
	Pedagio        *types.Money
	Estacionamento *types.Money
	Hospedagem     *types.Money
	HorasEspera    *types.Money
	Total          *types.Money
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (types.ID, error) {
	if err := Guard(OpCreate, "", cmd.Role); err != nil {
		return 0, err
	}
	if cmd.Solicitante == "" || cmd.Origem == "" || cmd.Destino == "" {
		return 0, ErrBadRequest
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	now := time.Now()
	c := Corrida{
		Solicitante:  cmd.Solicitante,
		Empresa:      cmd.Empresa,
		EmpresaID:    cmd.EmpresaID,
		Motorista:    strings.TrimSpace(cmd.Motorista),
		Veiculo:      cmd.Veiculo,
		Origem:       cmd.Origem,
		Destino:      cmd.Destino,
		PontoExtra:   cmd.PontoExtra,
		DataServico:  cmd.DataServico,
		Status:       InitialStatus(cmd.Motorista),
		ValorBase:    cmd.ValorBase,
		CriadoEm:     now,
		AtualizadoEm: now,
	}

	id, err := s.store.Insert(ctx, &c)
	if err != nil {
		return 0, fmt.Errorf("inserir corrida: %w", err)
	}
	c.ID = id
	s.patch(c)
	s.publish(ctx, AuditEvent{
		CorridaID: id, Operacao: OpCreate, Para: c.Status,
		Ator: cmd.Ator, Role: cmd.Role, CriadoEm: now,
	})
	s.log.Info("corrida created",
		zap.Int64("corrida_id", int64(id)),
		zap.String("status", string(c.Status)))
	return id, nil
}

func (s *Service) AssignDriver(ctx context.Context, cmd AssignDriverCommand) error {
	if strings.TrimSpace(cmd.Motorista) == "" {
		return ErrBadRequest
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	cur, err := s.find(cmd.ID)
	if err != nil {
		return err
	}
	if err := Guard(OpAssignar, cur.Status, cmd.Role); err != nil {
		return err
	}

	next := cur
	next.Motorista = strings.TrimSpace(cmd.Motorista)
	if cmd.Veiculo != "" {
		next.Veiculo = cmd.Veiculo
	}
	next.Status = StatusAguardandoOS
	next.AtualizadoEm = time.Now()

	if err := s.store.Update(ctx, &next); err != nil {
		return fmt.Errorf("gravar corrida: %w", err)
	}
	s.patch(next)
	s.publish(ctx, AuditEvent{
		CorridaID: cmd.ID, Operacao: OpAssignar, De: cur.Status, Para: next.Status,
		Ator: cmd.Ator, Role: cmd.Role, CriadoEm: next.AtualizadoEm,
	})
	s.log.Info("driver assigned",
		zap.Int64("corrida_id", int64(cmd.ID)),
		zap.String("motorista", next.Motorista))
	return nil
}

func (s *Service) FillServiceOrder(ctx context.Context, cmd FillOSCommand) (*FillResult, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	cur, err := s.find(cmd.ID)
	if err != nil {
		return nil, err
	}
	if err := Guard(OpPreencherOS, cur.Status, cmd.Role); err != nil {
		return nil, err
	}
	// Drivers may only submit their own service order; operators and admins
	// fill on the driver's behalf.
	if cmd.Role == RoleMotorista && !strings.EqualFold(cmd.Ator, cur.Motorista) {
		return nil, ErrForbidden
	}

	next := cur
	next.HoraInicio = cmd.HoraInicio
	next.HoraChegada = cmd.HoraChegada
	next.DistanciaKM = cmd.DistanciaKM
	next.TempoViagem = cmd.TempoViagem
	next.ValorMotorista = cmd.ValorMotorista
	next.Pedagio = cmd.Pedagio
	next.Estacionamento = cmd.Estacionamento
	next.Hospedagem = cmd.Hospedagem
	next.HorasEspera = cmd.HorasEspera
	next.Total = somaTotal(next)
	next.PreenchidoPorMotorista = true
	next.Status = StatusAguardandoConferencia
	next.AtualizadoEm = time.Now()

	if next.NumeroOS == "" {
		numero, err := s.nextOSNumber(ctx)
		if err != nil {
			return nil, err
		}
		next.NumeroOS = numero
	}

	if err := s.store.Update(ctx, &next); err != nil {
		return nil, fmt.Errorf("gravar corrida: %w", err)
	}

	res := &FillResult{NumeroOS: next.NumeroOS}
	for _, up := range cmd.Anexos {
		a, err := s.saveAnexo(ctx, next.ID, up)
		if err != nil {
			res.AnexoFalhas = append(res.AnexoFalhas, AnexoFalha{Nome: up.Nome, Err: err})
			s.log.Warn("attachment upload failed",
				zap.Int64("corrida_id", int64(next.ID)),
				zap.String("anexo", up.Nome),
				zap.Error(err))
			continue
		}
		next.Anexos = append(next.Anexos, a)
	}

	s.patch(next)
	s.publish(ctx, AuditEvent{
		CorridaID: cmd.ID, Operacao: OpPreencherOS, De: cur.Status, Para: next.Status,
		Ator: cmd.Ator, Role: cmd.Role, CriadoEm: next.AtualizadoEm,
	})
	s.log.Info("service order filled",
		zap.Int64("corrida_id", int64(cmd.ID)),
		zap.String("numero_os", next.NumeroOS))
	return res, nil
}

func (s *Service) Approve(ctx context.Context, cmd ApproveCommand) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	cur, err := s.find(cmd.ID)
	if err != nil {
		return err
	}
	if err := Guard(OpAprovar, cur.Status, cmd.Role); err != nil {
		return err
	}

	next := cur
	next.Status = StatusAprovada
	next.PreenchidoPorFinanceiro = true
	next.AtualizadoEm = time.Now()

	if err := s.store.Update(ctx, &next); err != nil {
		return fmt.Errorf("gravar corrida: %w", err)
	}
	s.patch(next)
	s.publish(ctx, AuditEvent{
		CorridaID: cmd.ID, Operacao: OpAprovar, De: cur.Status, Para: next.Status,
		Ator: cmd.Ator, Role: cmd.Role, CriadoEm: next.AtualizadoEm,
	})
	s.log.Info("corrida approved", zap.Int64("corrida_id", int64(cmd.ID)))
	return nil
}

func (s *Service) Reject(ctx context.Context, cmd RejectCommand) error {
	if strings.TrimSpace(cmd.Motivo) == "" {
		return ErrBadRequest
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	cur, err := s.find(cmd.ID)
	if err != nil {
		return err
	}
	if err := Guard(OpRejeitar, cur.Status, cmd.Role); err != nil {
		return err
	}

	next := cur
	next.Status = StatusRejeitada
	next.MotivoRejeicao = cmd.Motivo
	next.PreenchidoPorFinanceiro = true
	next.AtualizadoEm = time.Now()

	if err := s.store.Update(ctx, &next); err != nil {
		return fmt.Errorf("gravar corrida: %w", err)
	}
	s.patch(next)
	s.publish(ctx, AuditEvent{
		CorridaID: cmd.ID, Operacao: OpRejeitar, De: cur.Status, Para: next.Status,
		Ator: cmd.Ator, Role: cmd.Role, CriadoEm: next.AtualizadoEm,
	})
	s.log.Info("corrida rejected",
		zap.Int64("corrida_id", int64(cmd.ID)),
		zap.String("motivo", cmd.Motivo))
	return nil
}

// SetStatus is the administrative override: it bypasses the transition table
// entirely and may leave the driver-presence invariant violated. It is logged
// and published distinctly so audits can tell it apart from workflow progress.
func (s *Service) SetStatus(ctx context.Context, cmd SetStatusCommand) error {
	if !ValidStatus(cmd.Status) {
		return ErrInvalidStatus
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	cur, err := s.find(cmd.ID)
	if err != nil {
		return err
	}
	if err := Guard(OpOverride, cur.Status, cmd.Role); err != nil {
		return err
	}

	next := cur
	next.Status = cmd.Status
	next.AtualizadoEm = time.Now()

	if err := s.store.Update(ctx, &next); err != nil {
		return fmt.Errorf("gravar corrida: %w", err)
	}
	s.patch(next)
	s.publish(ctx, AuditEvent{
		CorridaID: cmd.ID, Operacao: OpOverride, De: cur.Status, Para: next.Status,
		Ator: cmd.Ator, Role: cmd.Role, Override: true, CriadoEm: next.AtualizadoEm,
	})
	s.log.Warn("administrative status override",
		zap.Int64("corrida_id", int64(cmd.ID)),
		zap.String("de", string(cur.Status)),
		zap.String("para", string(cmd.Status)),
		zap.String("ator", cmd.Ator))
	return nil
}

func (s *Service) Delete(ctx context.Context, cmd DeleteCommand) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	cur, err := s.find(cmd.ID)
	if err != nil {
		return err
	}
	if err := Guard(OpExcluir, cur.Status, cmd.Role); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, cmd.ID); err != nil {
		return fmt.Errorf("excluir corrida: %w", err)
	}
	s.remove(cmd.ID)
	s.publish(ctx, AuditEvent{
		CorridaID: cmd.ID, Operacao: OpExcluir, De: cur.Status,
		Ator: cmd.Ator, Role: cmd.Role, CriadoEm: time.Now(),
	})
	s.log.Info("corrida deleted", zap.Int64("corrida_id", int64(cmd.ID)))
	return nil
}

// Update applies a generic field edit. When the edit changes the driver field
// without setting status explicitly, the status is derived from the presence
// delta; an explicit status always wins.
func (s *Service) Update(ctx context.Context, cmd UpdateCommand) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	cur, err := s.find(cmd.ID)
	if err != nil {
		return err
	}
	if err := Guard(OpEditar, cur.Status, cmd.Role); err != nil {
		return err
	}

	next := cur
	applyString(&next.Solicitante, cmd.Solicitante)
	applyString(&next.Empresa, cmd.Empresa)
	if cmd.EmpresaID != nil {
		next.EmpresaID = *cmd.EmpresaID
	}
	applyString(&next.Veiculo, cmd.Veiculo)
	applyString(&next.Origem, cmd.Origem)
	applyString(&next.Destino, cmd.Destino)
	applyString(&next.PontoExtra, cmd.PontoExtra)
	if cmd.DataServico != nil {
		next.DataServico = *cmd.DataServico
	}
	applyString(&next.HoraInicio, cmd.HoraInicio)
	applyString(&next.HoraChegada, cmd.HoraChegada)
	if cmd.DistanciaKM != nil {
		next.DistanciaKM = *cmd.DistanciaKM
	}
	applyString(&next.TempoViagem, cmd.TempoViagem)
	applyString(&next.MotivoRejeicao, cmd.MotivoRejeicao)
	applyMoney(&next.ValorBase, cmd.ValorBase)
	applyMoney(&next.ValorMotorista, cmd.ValorMotorista)
	applyMoney(&next.Pedagio, cmd.Pedagio)
	applyMoney(&next.Estacionamento, cmd.Estacionamento)
	applyMoney(&next.Hospedagem, cmd.Hospedagem)
	applyMoney(&next.HorasEspera, cmd.HorasEspera)
	applyMoney(&next.Total, cmd.Total)

	if cmd.NumeroOS != nil {
		if cur.NumeroOS != "" && *cmd.NumeroOS != cur.NumeroOS {
			return ErrOSAssigned
		}
		next.NumeroOS = *cmd.NumeroOS
	}

	if cmd.Motorista != nil {
		next.Motorista = strings.TrimSpace(*cmd.Motorista)
	}

	switch {
	case cmd.Status != nil:
		if !ValidStatus(*cmd.Status) {
			return ErrInvalidStatus
		}
		next.Status = *cmd.Status
	case cmd.Motorista != nil:
		if derived, ok := DeriveStatus(cur.Status, cur.Motorista, next.Motorista); ok {
			next.Status = derived
		}
	}
	next.AtualizadoEm = time.Now()

	if err := s.store.Update(ctx, &next); err != nil {
		return fmt.Errorf("gravar corrida: %w", err)
	}
	s.patch(next)
	if next.Status != cur.Status {
		s.publish(ctx, AuditEvent{
			CorridaID: cmd.ID, Operacao: OpEditar, De: cur.Status, Para: next.Status,
			Ator: cmd.Ator, Role: cmd.Role, CriadoEm: next.AtualizadoEm,
		})
	}
	return nil
}

// Reload replaces the whole in-memory collection with the remote truth. It is
// the system's only conflict-resolution rule: optimistic local patches survive
// only until the next reload.
func (s *Service) Reload(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	list, err := s.store.List(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		return fmt.Errorf("recarregar corridas: %w", err)
	}
	s.corridas = list
	s.lastSyncedAt = time.Now()
	return nil
}

func (s *Service) Corridas() []Corrida {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Corrida, 0, len(s.corridas))
	for i := range s.corridas {
		out = append(out, s.corridas[i].clone())
	}
	return out
}

func (s *Service) Get(id types.ID) (Corrida, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.corridas {
		if s.corridas[i].ID == id {
			return s.corridas[i].clone(), nil
		}
	}
	return Corrida{}, ErrNotFound
}

// PorMotorista returns the rides assigned to a driver, by name.
func (s *Service) PorMotorista(nome string) []Corrida {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Corrida
	for i := range s.corridas {
		if strings.EqualFold(s.corridas[i].Motorista, nome) {
			out = append(out, s.corridas[i].clone())
		}
	}
	return out
}

// VisaoFinanceira is the conference view: every status passes through the
// mapper so the review workflow sees one vocabulary no matter how the
// underlying value was produced.
func (s *Service) VisaoFinanceira() []Corrida {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Corrida, 0, len(s.corridas))
	for i := range s.corridas {
		c := s.corridas[i].clone()
		c.Status = MapFinanceStatus(c.Status)
		out = append(out, c)
	}
	return out
}

func (s *Service) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// LastSyncedAt returns when the collection last matched the remote truth; the
// second return is false before the first successful reload.
func (s *Service) LastSyncedAt() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSyncedAt, !s.lastSyncedAt.IsZero()
}

func (s *Service) nextOSNumber(ctx context.Context) (string, error) {
	s.mu.RLock()
	floor := MaxOSNumber(s.corridas)
	s.mu.RUnlock()
	if s.seq == nil {
		return fmt.Sprintf("%05d", floor+1), nil
	}
	return s.seq.Next(ctx, floor)
}

func (s *Service) saveAnexo(ctx context.Context, id types.ID, up AnexoUpload) (Anexo, error) {
	if s.uploader == nil {
		return Anexo{}, errors.New("no uploader configured")
	}
	url, err := s.uploader.Upload(ctx, up.Nome, up.Conteudo)
	if err != nil {
		return Anexo{}, err
	}
	a := Anexo{CorridaID: id, Nome: up.Nome, Descricao: up.Descricao, URL: url}
	anexoID, err := s.store.InsertAnexo(ctx, &a)
	if err != nil {
		return Anexo{}, err
	}
	a.ID = anexoID
	return a, nil
}

// find returns a copy of the cached ride.
func (s *Service) find(id types.ID) (Corrida, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.corridas {
		if s.corridas[i].ID == id {
			return s.corridas[i].clone(), nil
		}
	}
	return Corrida{}, ErrNotFound
}

// patch optimistically applies a mutation result to the cache. The next full
// reload overwrites it with the remote truth.
func (s *Service) patch(c Corrida) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.corridas {
		if s.corridas[i].ID == c.ID {
			s.corridas[i] = c
			return
		}
	}
	s.corridas = append(s.corridas, c)
}

func (s *Service) remove(id types.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.corridas {
		if s.corridas[i].ID == id {
			s.corridas = append(s.corridas[:i], s.corridas[i+1:]...)
			return
		}
	}
}

func (s *Service) publish(ctx context.Context, e AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Publish(ctx, e); err != nil {
		s.log.Warn("audit publish failed",
			zap.Int64("corrida_id", int64(e.CorridaID)),
			zap.String("operacao", string(e.Operacao)),
			zap.Error(err))
	}
}

func somaTotal(c Corrida) types.Money {
	total := c.ValorBase.Amount + c.Pedagio.Amount + c.Estacionamento.Amount +
		c.Hospedagem.Amount + c.HorasEspera.Amount
	return types.Money{Amount: total, Currency: "BRL"}
}

func applyString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func applyMoney(dst *types.Money, v *types.Money) {
	if v != nil {
		*dst = *v
	}
}
