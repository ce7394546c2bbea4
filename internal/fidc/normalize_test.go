package fidc

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesacredito/fidc-cli/internal/schema"
)

func TestParseNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want *float64
	}{
		{"currency", "R$ 1.234,56", ptr(1234.56)},
		{"percent", "45,67%", ptr(45.67)},
		{"millions", "1.234.567,89", ptr(1234567.89)},
		{"negative", "-3,2", ptr(-3.2)},
		{"dot is thousands", "1.5", ptr(15)},
		{"plain int string", "42", ptr(42)},
		{"empty", "", nil},
		{"letters only", "n/a", nil},
		{"two minus signs", "1-2", nil},
		{"int", 42, ptr(42)},
		{"int64", int64(7), ptr(7)},
		{"float", 12.5, ptr(12.5)},
		{"json number", json.Number("3.25"), ptr(3.25)},
		{"bad json number", json.Number("x"), nil},
		{"nil", nil, nil},
		{"bool", true, nil},
		{"nan", math.NaN(), nil},
		{"inf", math.Inf(1), nil},
		{"scalar string", schema.NewScalar("10,5"), ptr(10.5)},
		{"scalar null", schema.NewScalar(nil), nil},
		{"nil scalar pointer", (*schema.Scalar)(nil), nil},
		{"slice", []int{1}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseNumber(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestMonthNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"03", 3, true},
		{"3", 3, true},
		{"12", 12, true},
		{"13", 0, false},
		{"0", 0, false},
		{"Março", 3, true},
		{"marco", 3, true},
		{"MAR", 3, true},
		{"mar.", 3, true},
		{"fev", 2, true},
		{"Feb", 2, true},
		{"Sept", 9, true},
		{"outubro", 10, true},
		{"Dec", 12, true},
		{" ago ", 8, true},
		{"", 0, false},
		{"foo", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := MonthNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeMonth(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "02", NormalizeMonth("fevereiro"))
	assert.Equal(t, "09", NormalizeMonth("9"))
	assert.Equal(t, "11", NormalizeMonth("NOV"))
	assert.Equal(t, "xyz", NormalizeMonth("xyz"))
	assert.Equal(t, "13", NormalizeMonth("13"))
}

func TestNameNormalisers(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "taxa_media", lowerName(" Taxa Media "))
	assert.Equal(t, "CVNP_A_B", keepName("CVNP A B"))
	assert.Equal(t, "ate_30_dias", slugName("Até 30 dias"))
	assert.Equal(t, "acima_de_360_dias", slugName("Acima de 360 dias"))
	assert.Equal(t, "360_dias", slugName("> 360 dias"))
	assert.Equal(t, "marco", foldAccents("março"))
}

func ptr(f float64) *float64 { return &f }
