package fidc

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mesacredito/fidc-cli/internal/schema"
)

// UnsupportedSchemaError is returned when no processor handles a schema name.
type UnsupportedSchemaError struct {
	Name      string
	Supported []string
}

func (e *UnsupportedSchemaError) Error() string {
	return fmt.Sprintf("fidc: no processor for schema %q (supported: %s)", e.Name, strings.Join(e.Supported, ", "))
}

type processorSpec struct {
	fund string
	new  func(base) Processor
}

var (
	bemolSpec      = processorSpec{schema.FundBemol, func(b base) Processor { return &bemolProcessor{b} }}
	icredSpec      = processorSpec{schema.FundICred, func(b base) Processor { return &icredProcessor{b} }}
	somacredSpec   = processorSpec{schema.FundSomacred, func(b base) Processor { return &somacredProcessor{b} }}
	brzSpec        = processorSpec{schema.FundBRZConsignados, func(b base) Processor { return &brzProcessor{b} }}
	credzSpec      = processorSpec{schema.FundCredz, func(b base) Processor { return &credzProcessor{b} }}
	sifraSpec      = processorSpec{schema.FundSifra, func(b base) Processor { return &sifraProcessor{b} }}
	valoraSpec     = processorSpec{schema.FundValora, withFilenamePeriod(func(b base) Processor { return &valoraProcessor{b} })}
	multiplicaSpec = processorSpec{schema.FundMultiplica, withFilenamePeriod(func(b base) Processor { return &multiplicaProcessor{b} })}
	tapsoSpec      = processorSpec{schema.FundTapso, func(b base) Processor { return &tapsoProcessor{b} }}
)

// processors maps every schema name to its fund processor. Image templates
// share the text template's processor.
var processors = map[string]processorSpec{
	"bemol":                 bemolSpec,
	"bemol_image":           bemolSpec,
	"icred":                 icredSpec,
	"icred_image":           icredSpec,
	"somacred":              somacredSpec,
	"somacred_image":        somacredSpec,
	"brz_consignados":       brzSpec,
	"brz_consignados_image": brzSpec,
	"credz":                 credzSpec,
	"sifra":                 sifraSpec,
	"valora":                valoraSpec,
	"multiplica":            multiplicaSpec,
	"tapso":                 tapsoSpec,
}

func withFilenamePeriod(fn func(base) Processor) func(base) Processor {
	return func(b base) Processor {
		b.filenameFallback = true
		return fn(b)
	}
}

// NewProcessor returns the processor registered for schemaName.
func NewProcessor(schemaName string, deps Deps) (Processor, error) {
	spec, ok := processors[schemaName]
	if !ok {
		return nil, &UnsupportedSchemaError{Name: schemaName, Supported: SupportedSchemas()}
	}
	return spec.new(newBase(spec.fund, deps)), nil
}

// SupportedSchemas lists the schema names with a processor, sorted.
func SupportedSchemas() []string {
	names := make([]string, 0, len(processors))
	for n := range processors {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
