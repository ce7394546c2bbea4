package fidc

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInvalidFilename marks names that do not follow FIDC_<FUND>_<YYYY>_<MM>.<ext>.
var ErrInvalidFilename = eris.New("invalid filename format")

// FilenameInfo is what the file naming convention encodes.
type FilenameInfo struct {
	FundName   string // middle tokens rejoined with "_"
	Year       int
	Month      int    // 0 when MonthToken is not a recognised month
	MonthToken string // the raw last token
}

// ParseFilename reads FIDC_<FUND_NAME>_<YYYY>_<MM>.<ext>. The fund name may
// itself contain underscores; the last two tokens are the year and month.
func ParseFilename(name string) (FilenameInfo, error) {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	tokens := strings.Split(base, "_")
	if len(tokens) < 4 {
		return FilenameInfo{}, eris.Wrapf(ErrInvalidFilename, "%s", name)
	}

	yearTok := tokens[len(tokens)-2]
	if len(yearTok) != 4 {
		return FilenameInfo{}, eris.Wrapf(ErrInvalidFilename, "%s: year %q", name, yearTok)
	}
	year, err := strconv.Atoi(yearTok)
	if err != nil || year < 0 {
		return FilenameInfo{}, eris.Wrapf(ErrInvalidFilename, "%s: year %q", name, yearTok)
	}

	fund := strings.Join(tokens[1:len(tokens)-2], "_")
	if fund == "" {
		return FilenameInfo{}, eris.Wrapf(ErrInvalidFilename, "%s: empty fund name", name)
	}

	monthTok := tokens[len(tokens)-1]
	month, _ := MonthNumber(monthTok)

	return FilenameInfo{
		FundName:   fund,
		Year:       year,
		Month:      month,
		MonthToken: monthTok,
	}, nil
}

// isFIDCFile reports whether a directory entry follows the FIDC_ prefix convention.
func isFIDCFile(name string) bool {
	return strings.HasPrefix(strings.ToUpper(name), "FIDC_")
}
