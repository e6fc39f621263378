// README: Corrida store backed by PostgreSQL.
package corrida

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"primetransportes/internal/types"
)

// RemoteStore is the storage collaborator contract. The service treats it as
// the owner of record; the in-memory collection is only a cache of List.
type RemoteStore interface {
	List(ctx context.Context) ([]Corrida, error)
	Insert(ctx context.Context, c *Corrida) (types.ID, error)
	Update(ctx context.Context, c *Corrida) error
	Delete(ctx context.Context, id types.ID) error
	InsertAnexo(ctx context.Context, a *Anexo) (int64, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const corridaColumns = `
	id, solicitante, empresa, empresa_id, motorista, veiculo,
	origem, destino, ponto_extra, data_servico, hora_inicio, hora_chegada,
	distancia_km, tempo_viagem,
	status, motivo_rejeicao, numero_os, preenchido_por_motorista, preenchido_por_financeiro,
	valor_base, valor_motorista, pedagio, estacionamento, hospedagem, horas_espera, total,
	criado_em, atualizado_em`

func (s *Store) List(ctx context.Context) ([]Corrida, error) {
	rows, err := s.db.Query(ctx, `SELECT `+corridaColumns+` FROM corridas ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Corrida
	byID := map[types.ID]int{}
	for rows.Next() {
		c, err := scanCorrida(rows)
		if err != nil {
			return nil, err
		}
		byID[c.ID] = len(out)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	anexos, err := s.db.Query(ctx, `
		SELECT id, corrida_id, nome, descricao, url
		FROM corrida_anexos ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer anexos.Close()
	for anexos.Next() {
		var a Anexo
		if err := anexos.Scan(&a.ID, &a.CorridaID, &a.Nome, &a.Descricao, &a.URL); err != nil {
			return nil, err
		}
		if i, ok := byID[a.CorridaID]; ok {
			out[i].Anexos = append(out[i].Anexos, a)
		}
	}
	return out, anexos.Err()
}

func (s *Store) Insert(ctx context.Context, c *Corrida) (types.ID, error) {
	var id types.ID
	err := s.db.QueryRow(ctx, `
		INSERT INTO corridas (
			solicitante, empresa, empresa_id, motorista, veiculo,
			origem, destino, ponto_extra, data_servico, hora_inicio, hora_chegada,
			distancia_km, tempo_viagem,
			status, motivo_rejeicao, numero_os, preenchido_por_motorista, preenchido_por_financeiro,
			valor_base, valor_motorista, pedagio, estacionamento, hospedagem, horas_espera, total,
			criado_em, atualizado_em
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13,
			$14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25,
			$26, $27
		) RETURNING id`,
		c.Solicitante, c.Empresa, c.EmpresaID, c.Motorista, c.Veiculo,
		c.Origem, c.Destino, c.PontoExtra, c.DataServico, c.HoraInicio, c.HoraChegada,
		c.DistanciaKM, c.TempoViagem,
		string(c.Status), nullIfEmpty(c.MotivoRejeicao), nullIfEmpty(c.NumeroOS),
		c.PreenchidoPorMotorista, c.PreenchidoPorFinanceiro,
		c.ValorBase.Amount, c.ValorMotorista.Amount, c.Pedagio.Amount,
		c.Estacionamento.Amount, c.Hospedagem.Amount, c.HorasEspera.Amount, c.Total.Amount,
		c.CriadoEm, c.AtualizadoEm,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, c *Corrida) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE corridas SET
			solicitante = $1, empresa = $2, empresa_id = $3, motorista = $4, veiculo = $5,
			origem = $6, destino = $7, ponto_extra = $8, data_servico = $9,
			hora_inicio = $10, hora_chegada = $11, distancia_km = $12, tempo_viagem = $13,
			status = $14, motivo_rejeicao = $15,
			numero_os = COALESCE(numero_os, $16),
			preenchido_por_motorista = $17, preenchido_por_financeiro = $18,
			valor_base = $19, valor_motorista = $20, pedagio = $21,
			estacionamento = $22, hospedagem = $23, horas_espera = $24, total = $25,
			atualizado_em = $26
		WHERE id = $27`,
		c.Solicitante, c.Empresa, c.EmpresaID, c.Motorista, c.Veiculo,
		c.Origem, c.Destino, c.PontoExtra, c.DataServico,
		c.HoraInicio, c.HoraChegada, c.DistanciaKM, c.TempoViagem,
		string(c.Status), nullIfEmpty(c.MotivoRejeicao),
		nullIfEmpty(c.NumeroOS),
		c.PreenchidoPorMotorista, c.PreenchidoPorFinanceiro,
		c.ValorBase.Amount, c.ValorMotorista.Amount, c.Pedagio.Amount,
		c.Estacionamento.Amount, c.Hospedagem.Amount, c.HorasEspera.Amount, c.Total.Amount,
		c.AtualizadoEm,
		int64(c.ID),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the ride and cascades its attachment references in one
// transaction.
func (s *Store) Delete(ctx context.Context, id types.ID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM corrida_anexos WHERE corrida_id = $1`, int64(id)); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM corridas WHERE id = $1`, int64(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (s *Store) InsertAnexo(ctx context.Context, a *Anexo) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO corrida_anexos (corrida_id, nome, descricao, url)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		int64(a.CorridaID), a.Nome, a.Descricao, a.URL,
	).Scan(&id)
	return id, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCorrida(row rowScanner) (Corrida, error) {
	var c Corrida
	var motivo, numeroOS sql.NullString
	var status string
	err := row.Scan(
		&c.ID, &c.Solicitante, &c.Empresa, &c.EmpresaID, &c.Motorista, &c.Veiculo,
		&c.Origem, &c.Destino, &c.PontoExtra, &c.DataServico, &c.HoraInicio, &c.HoraChegada,
		&c.DistanciaKM, &c.TempoViagem,
		&status, &motivo, &numeroOS, &c.PreenchidoPorMotorista, &c.PreenchidoPorFinanceiro,
		&c.ValorBase.Amount, &c.ValorMotorista.Amount, &c.Pedagio.Amount,
		&c.Estacionamento.Amount, &c.Hospedagem.Amount, &c.HorasEspera.Amount, &c.Total.Amount,
		&c.CriadoEm, &c.AtualizadoEm,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Corrida{}, ErrNotFound
	}
	if err != nil {
		return Corrida{}, err
	}
	c.Status = Status(status)
	c.MotivoRejeicao = motivo.String
	c.NumeroOS = numeroOS.String
	for _, m := range []*types.Money{
		&c.ValorBase, &c.ValorMotorista, &c.Pedagio,
		&c.Estacionamento, &c.Hospedagem, &c.HorasEspera, &c.Total,
	} {
		m.Currency = "BRL"
	}
	return c, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
