package schema

import (
	"bytes"
	"encoding/json"
)

// Report is a decoded extraction result. Every fund report carries its
// reporting period at the top level.
type Report interface {
	ReportPeriod() Header
}

// Header is the ano/mes pair shared by all reports.
type Header struct {
	Ano Scalar `json:"ano"`
	Mes Scalar `json:"mes"`
}

func (h Header) ReportPeriod() Header { return h }

// PeriodRow is a time-series point: its own ano/mes plus named numeric fields.
type PeriodRow struct {
	Ano    Scalar
	Mes    Scalar
	Fields map[string]Scalar
}

func (r *PeriodRow) UnmarshalJSON(b []byte) error {
	var raw map[string]Scalar
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	r.Ano = raw["ano"]
	r.Mes = raw["mes"]
	delete(raw, "ano")
	delete(raw, "mes")
	r.Fields = raw
	return nil
}

func (r PeriodRow) MarshalJSON() ([]byte, error) {
	out := make(map[string]Scalar, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["ano"] = r.Ano
	out["mes"] = r.Mes
	return json.Marshal(out)
}

// PaymentStatus is one row of a "pagamentos por status" table.
type PaymentStatus struct {
	Status     string `json:"status"`
	Quantidade Scalar `json:"quantidade"`
	Valor      Scalar `json:"valor"`
}

// Bemol

type BemolReport struct {
	Header
	Resultado *BemolResultado `json:"resultado"`
}

type BemolResultado struct {
	DadosCadastrais map[string]Scalar `json:"dados_cadastrais"`
	Indicadores     map[string]Scalar `json:"indicadores"`
	Limites         []BemolLimite     `json:"limites"`
}

type BemolLimite struct {
	Indicador      string `json:"indicador"`
	Valor          Scalar `json:"valor"`
	Limite         Scalar `json:"limite"`
	LimiteSuperior *bool  `json:"limite_superior"`
}

// ICred

type ICredReport struct {
	Header
	Carteira            map[string]Scalar   `json:"carteira"`
	Concentracao        []ICredConcentracao `json:"concentracao"`
	PagamentosPorStatus []PaymentStatus     `json:"pagamentos_por_status"`
}

// ICredConcentracao lists the largest exposures for one borrower type (PF or PJ).
type ICredConcentracao struct {
	Tipo    string         `json:"tipo"`
	Maiores []ICredPosicao `json:"maiores"`
}

type ICredPosicao struct {
	Posicao    Scalar `json:"posicao"`
	Percentual Scalar `json:"percentual"`
}

// Somacred

type SomacredReport struct {
	Header
	Indicadores map[string]Scalar `json:"indicadores"`
	Series      []SomacredSerie   `json:"series"`
}

type SomacredSerie struct {
	Nome   string          `json:"nome"`
	Pontos []SomacredPonto `json:"pontos"`
}

type SomacredPonto struct {
	Mes     Scalar            `json:"mes"`
	Ano     Scalar            `json:"ano"`
	Valores map[string]Scalar `json:"valores"`
}

// BRZ Consignados

type BRZReport struct {
	Header
	CVNP         []BRZCVNP         `json:"cvnp"`
	Subordinacao map[string]Scalar `json:"subordinacao"`
	Averbadoras  []BRZAverbadora   `json:"averbadoras"`
}

type BRZCVNP struct {
	Nome   string `json:"nome"`
	Valor  Scalar `json:"valor"`
	Limite Scalar `json:"limite"`
}

type BRZAverbadora struct {
	Averbadora string `json:"averbadora"`
	Percentual Scalar `json:"percentual"`
}

// Credz

type CredzReport struct {
	Header
	DadosCadastrais          map[string]Scalar `json:"dados_cadastrais"`
	IndicadoresDesempenho    []CredzIndicador  `json:"indicadores_desempenho"`
	ParametrosAgenteCobranca map[string]any    `json:"parametros_agente_cobranca"`
}

type CredzIndicador struct {
	Indicador string `json:"indicador"`
	Valor     Scalar `json:"valor"`
	Meta      Scalar `json:"meta"`
}

// Sifra

type SifraReport struct {
	Header
	Historico              []PeriodRow     `json:"historico"`
	CriteriosElegibilidade []SifraCriterio `json:"criterios_elegibilidade"`
}

type SifraCriterio struct {
	Criterio     string `json:"criterio"`
	ValorApurado Scalar `json:"valor_apurado"`
	Limite       Scalar `json:"limite"`
	TipoLimite   string `json:"tipo_limite"` // "maximo" or "minimo"
	Enquadrado   *bool  `json:"enquadrado"`
}

// Valora

type ValoraReport struct {
	Header
	Resumo   map[string]Scalar `json:"resumo"`
	Cedentes []Participante    `json:"cedentes"`
	Sacados  []Participante    `json:"sacados"`
}

// Participante is a counterparty in a top-N concentration table.
type Participante struct {
	Nome       string `json:"nome"`
	Percentual Scalar `json:"percentual"`
}

// Multiplica

type MultiplicaReport struct {
	Header
	DadosCadastrais  map[string]Scalar          `json:"dados_cadastrais"`
	CarteiraPorPrazo []FaixaPrazo               `json:"carteira_por_prazo"`
	IndicesCobertura map[string]IndiceCobertura `json:"indices_cobertura"`
}

type FaixaPrazo struct {
	Faixa      string `json:"faixa"`
	Valor      Scalar `json:"valor"`
	Percentual Scalar `json:"percentual"`
}

type IndiceCobertura struct {
	Valor          Scalar `json:"valor"`
	Limite         Scalar `json:"limite"`
	LimiteSuperior *bool  `json:"limite_superior"`
}

// Tapso

type TapsoReport struct {
	Header
	Resultado   *TapsoResultado `json:"resultado"`
	FluxoMensal []PeriodRow     `json:"fluxo_mensal"`
}

type TapsoResultado struct {
	Indicadores         map[string]Scalar `json:"indicadores"`
	PagamentosPorStatus []PaymentStatus   `json:"pagamentos_por_status"`
}
