// README: DB-backed store tests; skipped unless PRIME_TEST_DSN is set.
package corrida

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"primetransportes/internal/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("PRIME_TEST_DSN")
	if dsn == "" {
		t.Skip("PRIME_TEST_DSN not set; skipping DB-backed store tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS corridas (
			id BIGSERIAL PRIMARY KEY,
			solicitante TEXT NOT NULL,
			empresa TEXT NOT NULL DEFAULT '',
			empresa_id BIGINT NOT NULL DEFAULT 0,
			motorista TEXT NOT NULL DEFAULT '',
			veiculo TEXT NOT NULL DEFAULT '',
			origem TEXT NOT NULL,
			destino TEXT NOT NULL,
			ponto_extra TEXT NOT NULL DEFAULT '',
			data_servico TIMESTAMPTZ NOT NULL,
			hora_inicio TEXT NOT NULL DEFAULT '',
			hora_chegada TEXT NOT NULL DEFAULT '',
			distancia_km DOUBLE PRECISION NOT NULL DEFAULT 0,
			tempo_viagem TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			motivo_rejeicao TEXT,
			numero_os TEXT,
			preenchido_por_motorista BOOLEAN NOT NULL DEFAULT FALSE,
			preenchido_por_financeiro BOOLEAN NOT NULL DEFAULT FALSE,
			valor_base BIGINT NOT NULL DEFAULT 0,
			valor_motorista BIGINT NOT NULL DEFAULT 0,
			pedagio BIGINT NOT NULL DEFAULT 0,
			estacionamento BIGINT NOT NULL DEFAULT 0,
			hospedagem BIGINT NOT NULL DEFAULT 0,
			horas_espera BIGINT NOT NULL DEFAULT 0,
			total BIGINT NOT NULL DEFAULT 0,
			criado_em TIMESTAMPTZ NOT NULL DEFAULT now(),
			atualizado_em TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS corrida_anexos (
			id BIGSERIAL PRIMARY KEY,
			corrida_id BIGINT NOT NULL REFERENCES corridas(id),
			nome TEXT NOT NULL,
			descricao TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL
		);
	`); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = db.Exec(cleanupCtx, `TRUNCATE corrida_anexos, corridas`)
		db.Close()
	})

	return NewStore(db)
}

func insertTestCorrida(t *testing.T, st *Store) types.ID {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	id, err := st.Insert(context.Background(), &Corrida{
		Solicitante:  "Empresa Alfa",
		Motorista:    "Carlos",
		Origem:       "Guarulhos",
		Destino:      "Centro",
		DataServico:  now,
		Status:       StatusAguardandoOS,
		ValorBase:    types.BRL(15000),
		CriadoEm:     now,
		AtualizadoEm: now,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return id
}

func TestStoreInsertAndList(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	id := insertTestCorrida(t, st)
	list, err := st.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var got *Corrida
	for i := range list {
		if list[i].ID == id {
			got = &list[i]
		}
	}
	if got == nil {
		t.Fatalf("inserted ride %d not listed", id)
	}
	if got.Status != StatusAguardandoOS || got.Motorista != "Carlos" {
		t.Errorf("listed ride = %+v", got)
	}
	if got.NumeroOS != "" || got.MotivoRejeicao != "" {
		t.Errorf("NULL columns not scanned as empty: %+v", got)
	}
	if got.ValorBase.Amount != 15000 || got.ValorBase.Currency != "BRL" {
		t.Errorf("valor base = %+v", got.ValorBase)
	}
}

func TestStoreNumeroOSImmutable(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	id := insertTestCorrida(t, st)
	list, _ := st.List(ctx)
	c := list[len(list)-1]

	c.NumeroOS = "00001"
	if err := st.Update(ctx, &c); err != nil {
		t.Fatalf("first update: %v", err)
	}

	// A second write with a different number is silently kept at the original.
	c.NumeroOS = "00099"
	if err := st.Update(ctx, &c); err != nil {
		t.Fatalf("second update: %v", err)
	}
	list, _ = st.List(ctx)
	for i := range list {
		if list[i].ID == id && list[i].NumeroOS != "00001" {
			t.Errorf("numero OS overwritten to %q", list[i].NumeroOS)
		}
	}
}

func TestStoreDeleteCascadesAnexos(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	id := insertTestCorrida(t, st)
	if _, err := st.InsertAnexo(ctx, &Anexo{
		CorridaID: id, Nome: "recibo.pdf", URL: "https://anexos.local/recibo.pdf",
	}); err != nil {
		t.Fatalf("insert anexo: %v", err)
	}

	if err := st.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}

	list, err := st.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i := range list {
		if list[i].ID == id {
			t.Error("deleted ride still listed")
		}
	}
}

func TestStoreUpdateMissingRow(t *testing.T) {
	st := setupTestStore(t)
	err := st.Update(context.Background(), &Corrida{ID: 999999, Status: StatusAprovada})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("update of missing row = %v, want ErrNotFound", err)
	}
}
