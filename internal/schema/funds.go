package schema

// Fund identifiers. Each fund has one processor; some ship a text and an
// image template that decode into the same report.
const (
	FundBemol          = "bemol"
	FundICred          = "icred"
	FundSomacred       = "somacred"
	FundBRZConsignados = "brz_consignados"
	FundCredz          = "credz"
	FundSifra          = "sifra"
	FundValora         = "valora"
	FundMultiplica     = "multiplica"
	FundTapso          = "tapso"
)

const imageSuffix = "_image"

func bemolShape(title string) map[string]any {
	return report(title, map[string]any{
		"resultado": object(map[string]any{
			"dados_cadastrais": mapOf(text()),
			"indicadores":      mapOf(scalar()),
			"limites": array(object(map[string]any{
				"indicador":       str(),
				"valor":           scalar(),
				"limite":          scalar(),
				"limite_superior": boolean(),
			})),
		}),
	})
}

func icredShape(title string) map[string]any {
	return report(title, map[string]any{
		"carteira": mapOf(scalar()),
		"concentracao": array(object(map[string]any{
			"tipo": str(),
			"maiores": array(object(map[string]any{
				"posicao":    scalar(),
				"percentual": scalar(),
			})),
		})),
		"pagamentos_por_status": array(paymentStatusShape()),
	})
}

func somacredShape(title string) map[string]any {
	return report(title, map[string]any{
		"indicadores": mapOf(scalar()),
		"series": array(object(map[string]any{
			"nome": str(),
			"pontos": array(object(map[string]any{
				"mes":     period()["mes"],
				"ano":     period()["ano"],
				"valores": mapOf(scalar()),
			})),
		})),
	})
}

func brzShape(title string) map[string]any {
	return report(title, map[string]any{
		"cvnp": array(object(map[string]any{
			"nome":   str(),
			"valor":  scalar(),
			"limite": scalar(),
		})),
		"subordinacao": mapOf(scalar()),
		"averbadoras": array(object(map[string]any{
			"averbadora": str(),
			"percentual": scalar(),
		})),
	})
}

func credzShape(title string) map[string]any {
	return report(title, map[string]any{
		"dados_cadastrais": mapOf(text()),
		"indicadores_desempenho": array(object(map[string]any{
			"indicador": str(),
			"valor":     scalar(),
			"meta":      scalar(),
		})),
		"parametros_agente_cobranca": freeObject(),
	})
}

func sifraShape(title string) map[string]any {
	return report(title, map[string]any{
		"historico": array(pointRow()),
		"criterios_elegibilidade": array(object(map[string]any{
			"criterio":      str(),
			"valor_apurado": scalar(),
			"limite":        scalar(),
			"tipo_limite":   enum("maximo", "minimo"),
			"enquadrado":    boolean(),
		})),
	})
}

func valoraShape(title string) map[string]any {
	participante := object(map[string]any{
		"nome":       str(),
		"percentual": scalar(),
	})
	return report(title, map[string]any{
		"resumo":   mapOf(scalar()),
		"cedentes": array(participante),
		"sacados":  array(participante),
	})
}

func multiplicaShape(title string) map[string]any {
	return report(title, map[string]any{
		"dados_cadastrais": mapOf(text()),
		"carteira_por_prazo": array(object(map[string]any{
			"faixa":      str(),
			"valor":      scalar(),
			"percentual": scalar(),
		})),
		"indices_cobertura": mapOf(object(map[string]any{
			"valor":           scalar(),
			"limite":          scalar(),
			"limite_superior": boolean(),
		})),
	})
}

func tapsoShape(title string) map[string]any {
	return report(title, map[string]any{
		"resultado": object(map[string]any{
			"indicadores":           mapOf(scalar()),
			"pagamentos_por_status": array(paymentStatusShape()),
		}),
		"fluxo_mensal": array(pointRow()),
	})
}

func paymentStatusShape() map[string]any {
	return object(map[string]any{
		"status":     str(),
		"quantidade": scalar(),
		"valor":      scalar(),
	})
}

type fundSpec struct {
	fund      string
	withImage bool
	shape     func(title string) map[string]any
	newReport func() Report
}

var fundSpecs = []fundSpec{
	{FundBemol, true, bemolShape, func() Report { return &BemolReport{} }},
	{FundICred, true, icredShape, func() Report { return &ICredReport{} }},
	{FundSomacred, true, somacredShape, func() Report { return &SomacredReport{} }},
	{FundBRZConsignados, true, brzShape, func() Report { return &BRZReport{} }},
	{FundCredz, false, credzShape, func() Report { return &CredzReport{} }},
	{FundSifra, false, sifraShape, func() Report { return &SifraReport{} }},
	{FundValora, false, valoraShape, func() Report { return &ValoraReport{} }},
	{FundMultiplica, false, multiplicaShape, func() Report { return &MultiplicaReport{} }},
	{FundTapso, false, tapsoShape, func() Report { return &TapsoReport{} }},
}

func fundDescriptors() []*Descriptor {
	var ds []*Descriptor
	for _, f := range fundSpecs {
		ds = append(ds, &Descriptor{
			Name:      f.fund,
			Fund:      f.fund,
			Shape:     f.shape(f.fund),
			newReport: f.newReport,
		})
		if f.withImage {
			name := f.fund + imageSuffix
			ds = append(ds, &Descriptor{
				Name:      name,
				Fund:      f.fund,
				ImageMode: true,
				Shape:     f.shape(name),
				newReport: f.newReport,
			})
		}
	}
	return ds
}
