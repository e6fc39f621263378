// README: HTTP handlers translating request DTOs into corrida commands.
package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"primetransportes/internal/modules/corrida"
	"primetransportes/internal/types"
)

type anexoDTO struct {
	ID        int64  `json:"id"`
	Nome      string `json:"nome"`
	Descricao string `json:"descricao,omitempty"`
	URL       string `json:"url"`
}

type corridaDTO struct {
	ID          int64   `json:"id"`
	Solicitante string  `json:"solicitante"`
	Empresa     string  `json:"empresa,omitempty"`
	EmpresaID   int64   `json:"empresaId,omitempty"`
	Motorista   string  `json:"motorista,omitempty"`
	Veiculo     string  `json:"veiculo,omitempty"`
	Origem      string  `json:"origem"`
	Destino     string  `json:"destino"`
	PontoExtra  string  `json:"pontoExtra,omitempty"`
	DataServico string  `json:"dataServico,omitempty"`
	HoraInicio  string  `json:"horaInicio,omitempty"`
	HoraChegada string  `json:"horaChegada,omitempty"`
	DistanciaKM float64 `json:"distanciaKm,omitempty"`
	TempoViagem string  `json:"tempoViagem,omitempty"`

	Status                  string `json:"status"`
	MotivoRejeicao          string `json:"motivoRejeicao,omitempty"`
	NumeroOS                string `json:"numeroOS,omitempty"`
	PreenchidoPorMotorista  bool   `json:"preenchidoPorMotorista"`
	PreenchidoPorFinanceiro bool   `json:"preenchidoPorFinanceiro"`

	ValorBase      int64 `json:"valorBase"`
	ValorMotorista int64 `json:"valorMotorista"`
	Pedagio        int64 `json:"pedagio"`
	Estacionamento int64 `json:"estacionamento"`
	Hospedagem     int64 `json:"hospedagem"`
	HorasEspera    int64 `json:"horasEspera"`
	Total          int64 `json:"total"`

	Anexos []anexoDTO `json:"anexos,omitempty"`
}

func toDTO(c corrida.Corrida) corridaDTO {
	dto := corridaDTO{
		ID:          int64(c.ID),
		Solicitante: c.Solicitante,
		Empresa:     c.Empresa,
		EmpresaID:   c.EmpresaID,
		Motorista:   c.Motorista,
		Veiculo:     c.Veiculo,
		Origem:      c.Origem,
		Destino:     c.Destino,
		PontoExtra:  c.PontoExtra,
		HoraInicio:  c.HoraInicio,
		HoraChegada: c.HoraChegada,
		DistanciaKM: c.DistanciaKM,
		TempoViagem: c.TempoViagem,

		Status:                  string(c.Status),
		MotivoRejeicao:          c.MotivoRejeicao,
		NumeroOS:                c.NumeroOS,
		PreenchidoPorMotorista:  c.PreenchidoPorMotorista,
		PreenchidoPorFinanceiro: c.PreenchidoPorFinanceiro,

		ValorBase:      c.ValorBase.Amount,
		ValorMotorista: c.ValorMotorista.Amount,
		Pedagio:        c.Pedagio.Amount,
		Estacionamento: c.Estacionamento.Amount,
		Hospedagem:     c.Hospedagem.Amount,
		HorasEspera:    c.HorasEspera.Amount,
		Total:          c.Total.Amount,
	}
	if !c.DataServico.IsZero() {
		dto.DataServico = c.DataServico.Format("2006-01-02")
	}
	for _, a := range c.Anexos {
		dto.Anexos = append(dto.Anexos, anexoDTO{
			ID: a.ID, Nome: a.Nome, Descricao: a.Descricao, URL: a.URL,
		})
	}
	return dto
}

func toDTOs(cs []corrida.Corrida) []corridaDTO {
	out := make([]corridaDTO, 0, len(cs))
	for _, c := range cs {
		out = append(out, toDTO(c))
	}
	return out
}

func (s *Server) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, toDTOs(s.corridas.Corridas()))
}

func (s *Server) handleFinanceView(c *gin.Context) {
	c.JSON(http.StatusOK, toDTOs(s.corridas.VisaoFinanceira()))
}

func (s *Server) handleByDriver(c *gin.Context) {
	c.JSON(http.StatusOK, toDTOs(s.corridas.PorMotorista(c.Param("nome"))))
}

func (s *Server) handleRefresh(c *gin.Context) {
	if err := s.corridas.Reload(c.Request.Context()); err != nil {
		writeCorridaError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createRequest struct {
	Solicitante string `json:"solicitante"`
	Empresa     string `json:"empresa"`
	EmpresaID   int64  `json:"empresaId"`
	Motorista   string `json:"motorista"`
	Veiculo     string `json:"veiculo"`
	Origem      string `json:"origem"`
	Destino     string `json:"destino"`
	PontoExtra  string `json:"pontoExtra"`
	DataServico string `json:"dataServico"`
	ValorBase   int64  `json:"valorBase"`
}

func (s *Server) handleCreate(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	var dataServico time.Time
	if req.DataServico != "" {
		t, err := time.Parse("2006-01-02", req.DataServico)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dataServico"})
			return
		}
		dataServico = t
	}

	id, err := s.corridas.Create(c.Request.Context(), corrida.CreateCommand{
		Role:        roleFrom(c),
		Ator:        atorFrom(c),
		Solicitante: req.Solicitante,
		Empresa:     req.Empresa,
		EmpresaID:   req.EmpresaID,
		Motorista:   req.Motorista,
		Veiculo:     req.Veiculo,
		Origem:      req.Origem,
		Destino:     req.Destino,
		PontoExtra:  req.PontoExtra,
		DataServico: dataServico,
		ValorBase:   types.BRL(req.ValorBase),
	})
	if err != nil {
		writeCorridaError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": int64(id)})
}

type assignDriverRequest struct {
	Motorista string `json:"motorista"`
	Veiculo   string `json:"veiculo"`
}

func (s *Server) handleAssignDriver(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req assignDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	err := s.corridas.AssignDriver(c.Request.Context(), corrida.AssignDriverCommand{
		Role:      roleFrom(c),
		Ator:      atorFrom(c),
		ID:        id,
		Motorista: req.Motorista,
		Veiculo:   req.Veiculo,
	})
	if err != nil {
		writeCorridaError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type fillOSRequest struct {
	HoraInicio     string  `json:"horaInicio"`
	HoraChegada    string  `json:"horaChegada"`
	DistanciaKM    float64 `json:"distanciaKm"`
	TempoViagem    string  `json:"tempoViagem"`
	ValorMotorista int64   `json:"valorMotorista"`
	Pedagio        int64   `json:"pedagio"`
	Estacionamento int64   `json:"estacionamento"`
	Hospedagem     int64   `json:"hospedagem"`
	HorasEspera    int64   `json:"horasEspera"`
}

// handleFillOS accepts a multipart form: a "dados" JSON part plus any number
// of "anexos" file parts. Attachment failures come back per file.
func (s *Server) handleFillOS(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req fillOSRequest
	if err := json.Unmarshal([]byte(c.PostForm("dados")), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dados field"})
		return
	}

	cmd := corrida.FillOSCommand{
		Role:           roleFrom(c),
		Ator:           atorFrom(c),
		ID:             id,
		HoraInicio:     req.HoraInicio,
		HoraChegada:    req.HoraChegada,
		DistanciaKM:    req.DistanciaKM,
		TempoViagem:    req.TempoViagem,
		ValorMotorista: types.BRL(req.ValorMotorista),
		Pedagio:        types.BRL(req.Pedagio),
		Estacionamento: types.BRL(req.Estacionamento),
		Hospedagem:     types.BRL(req.Hospedagem),
		HorasEspera:    types.BRL(req.HorasEspera),
	}

	form, err := c.MultipartForm()
	if err == nil && form != nil {
		for _, fh := range form.File["anexos"] {
			f, err := fh.Open()
			if err != nil {
				s.log.Warn("skipping unreadable attachment",
					zap.String("anexo", fh.Filename), zap.Error(err))
				continue
			}
			defer f.Close()
			cmd.Anexos = append(cmd.Anexos, corrida.AnexoUpload{
				Nome:     fh.Filename,
				Conteudo: f,
			})
		}
	}

	res, err := s.corridas.FillServiceOrder(c.Request.Context(), cmd)
	if err != nil {
		writeCorridaError(c, err)
		return
	}

	falhas := make([]gin.H, 0, len(res.AnexoFalhas))
	for _, f := range res.AnexoFalhas {
		falhas = append(falhas, gin.H{"nome": f.Nome, "erro": f.Err.Error()})
	}
	c.JSON(http.StatusOK, gin.H{"numeroOS": res.NumeroOS, "anexoFalhas": falhas})
}

func (s *Server) handleApprove(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	err := s.corridas.Approve(c.Request.Context(), corrida.ApproveCommand{
		Role: roleFrom(c), Ator: atorFrom(c), ID: id,
	})
	if err != nil {
		writeCorridaError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type rejectRequest struct {
	Motivo string `json:"motivo"`
}

func (s *Server) handleReject(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	err := s.corridas.Reject(c.Request.Context(), corrida.RejectCommand{
		Role: roleFrom(c), Ator: atorFrom(c), ID: id, Motivo: req.Motivo,
	})
	if err != nil {
		writeCorridaError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleSetStatus(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	err := s.corridas.SetStatus(c.Request.Context(), corrida.SetStatusCommand{
		Role: roleFrom(c), Ator: atorFrom(c), ID: id, Status: corrida.Status(req.Status),
	})
	if err != nil {
		writeCorridaError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDelete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	err := s.corridas.Delete(c.Request.Context(), corrida.DeleteCommand{
		Role: roleFrom(c), Ator: atorFrom(c), ID: id,
	})
	if err != nil {
		writeCorridaError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type updateRequest struct {
	Solicitante *string  `json:"solicitante"`
	Empresa     *string  `json:"empresa"`
	EmpresaID   *int64   `json:"empresaId"`
	Motorista   *string  `json:"motorista"`
	Veiculo     *string  `json:"veiculo"`
	Origem      *string  `json:"origem"`
	Destino     *string  `json:"destino"`
	PontoExtra  *string  `json:"pontoExtra"`
	DataServico *string  `json:"dataServico"`
	HoraInicio  *string  `json:"horaInicio"`
	HoraChegada *string  `json:"horaChegada"`
	DistanciaKM *float64 `json:"distanciaKm"`
	TempoViagem *string  `json:"tempoViagem"`

	Status         *string `json:"status"`
	MotivoRejeicao *string `json:"motivoRejeicao"`
	NumeroOS       *string `json:"numeroOS"`

	ValorBase      *int64 `json:"valorBase"`
	ValorMotorista *int64 `json:"valorMotorista"`
	Pedagio        *int64 `json:"pedagio"`
	Estacionamento *int64 `json:"estacionamento"`
	Hospedagem     *int64 `json:"hospedagem"`
	HorasEspera    *int64 `json:"horasEspera"`
	Total          *int64 `json:"total"`
}

func (s *Server) handleUpdate(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	cmd := corrida.UpdateCommand{
		Role:           roleFrom(c),
		Ator:           atorFrom(c),
		ID:             id,
		Solicitante:    req.Solicitante,
		Empresa:        req.Empresa,
		EmpresaID:      req.EmpresaID,
		Motorista:      req.Motorista,
		Veiculo:        req.Veiculo,
		Origem:         req.Origem,
		Destino:        req.Destino,
		PontoExtra:     req.PontoExtra,
		HoraInicio:     req.HoraInicio,
		HoraChegada:    req.HoraChegada,
		DistanciaKM:    req.DistanciaKM,
		TempoViagem:    req.TempoViagem,
		MotivoRejeicao: req.MotivoRejeicao,
		NumeroOS:       req.NumeroOS,
		ValorBase:      moneyPtr(req.ValorBase),
		ValorMotorista: moneyPtr(req.ValorMotorista),
		Pedagio:        moneyPtr(req.Pedagio),
		Estacionamento: moneyPtr(req.Estacionamento),
		Hospedagem:     moneyPtr(req.Hospedagem),
		HorasEspera:    moneyPtr(req.HorasEspera),
		Total:          moneyPtr(req.Total),
	}
	if req.Status != nil {
		st := corrida.Status(*req.Status)
		cmd.Status = &st
	}
	if req.DataServico != nil {
		t, err := time.Parse("2006-01-02", *req.DataServico)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dataServico"})
			return
		}
		cmd.DataServico = &t
	}

	if err := s.corridas.Update(c.Request.Context(), cmd); err != nil {
		writeCorridaError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func idParam(c *gin.Context) (types.ID, bool) {
	n, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return types.ID(n), true
}

func moneyPtr(v *int64) *types.Money {
	if v == nil {
		return nil
	}
	m := types.BRL(*v)
	return &m
}
