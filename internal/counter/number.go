package counter

import (
	"fmt"
	"regexp"
	"strconv"
)

// ParsedOrderNumber is the decomposed form of a well-formed order number.
type ParsedOrderNumber struct {
	Prefix   string
	Year     int
	Month    int
	Day      int
	Sequence int64
}

// NumberFormat validates and parses order numbers for a fixed prefix and
// sequence width. It checks structure only: the date digits must form a
// plausible year/month/day, but impossible calendar dates such as
// February 30 are accepted at this layer.
type NumberFormat struct {
	prefix string
	width  int
	re     *regexp.Regexp
}

func NewNumberFormat(prefix string, width int) *NumberFormat {
	pattern := fmt.Sprintf(`^%s-(\d{8})-(\d{%d})$`, regexp.QuoteMeta(prefix), width)
	return &NumberFormat{
		prefix: prefix,
		width:  width,
		re:     regexp.MustCompile(pattern),
	}
}

func (f *NumberFormat) IsValid(number string) bool {
	_, err := f.Parse(number)
	return err == nil
}

func (f *NumberFormat) Parse(number string) (*ParsedOrderNumber, error) {
	m := f.re.FindStringSubmatch(number)
	if m == nil {
		return nil, fmt.Errorf("invalid order number format: %q", number)
	}

	year, _ := strconv.Atoi(m[1][:4])
	month, _ := strconv.Atoi(m[1][4:6])
	day, _ := strconv.Atoi(m[1][6:8])

	if year < 2000 || year > 2100 {
		return nil, fmt.Errorf("invalid order number year: %d", year)
	}
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid order number month: %d", month)
	}
	if day < 1 || day > 31 {
		return nil, fmt.Errorf("invalid order number day: %d", day)
	}

	seq, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid order number sequence: %w", err)
	}

	return &ParsedOrderNumber{
		Prefix:   f.prefix,
		Year:     year,
		Month:    month,
		Day:      day,
		Sequence: seq,
	}, nil
}
