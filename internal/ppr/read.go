package ppr

import (
	"crypto/md5"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/propeire/propeire/internal/batch"
)

// sourceColumns are the register's CSV columns, in file order.
var sourceColumns = []string{
	"sale_date",
	"address",
	"county",
	"postal_code",
	"price",
	"not_full_market_price",
	"vat_exclusive",
	"property_description",
	"property_size_description",
}

// Columns of the batches produced by Read.
var Columns = append(append([]string(nil), sourceColumns...),
	"year",
	"month",
	"period",
	"province",
	"dublin_area_code",
	"address_hash",
)

const dateLayout = "02/01/2006"

// ParseError reports a value the register export should never contain.
type ParseError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ReadFile reads a register CSV from disk.
func ReadFile(path string) (*batch.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening register file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a Windows-1252 register export and derives the reporting
// columns. Rows are stably sorted by sale date.
func Read(r io.Reader) (*batch.Batch, error) {
	cr := csv.NewReader(transform.NewReader(r, charmap.Windows1252.NewDecoder()))
	cr.FieldsPerRecord = len(sourceColumns)
	cr.ReuseRecord = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("register file is empty")
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	type dated struct {
		when time.Time
		row  []any
	}
	var recs []dated
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading register: %w", err)
		}
		line, _ := cr.FieldPos(0)
		row, when, err := transformRecord(rec, line)
		if err != nil {
			return nil, err
		}
		recs = append(recs, dated{when: when, row: row})
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].when.Before(recs[j].when) })

	rows := make([][]any, len(recs))
	for i, d := range recs {
		rows[i] = d.row
	}
	return batch.New(Columns, rows)
}

func transformRecord(rec []string, line int) ([]any, time.Time, error) {
	rawDate := strings.TrimSpace(rec[0])
	when, err := time.Parse(dateLayout, rawDate)
	if err != nil {
		return nil, time.Time{}, &ParseError{Line: line, Column: "sale_date", Value: rawDate, Err: err}
	}
	price, err := ParsePrice(rec[4])
	if err != nil {
		return nil, time.Time{}, &ParseError{Line: line, Column: "price", Value: rec[4], Err: err}
	}

	address := CleanAddress(rec[1])
	county := strings.TrimSpace(rec[2])
	postal := strings.TrimSpace(rec[3])

	row := make([]any, 0, len(Columns))
	row = append(row,
		when,
		nullable(address),
		nullable(county),
		nullable(postal),
		price,
		nullable(strings.TrimSpace(rec[5])),
		nullable(strings.TrimSpace(rec[6])),
		nullable(strings.TrimSpace(rec[7])),
		nullable(strings.TrimSpace(rec[8])),
		when.Format("2006"),
		when.Format("01"),
		when.Format("2006-01"),
		Province(county),
		AreaCode(postal),
		AddressHash(address),
	)
	return row, when, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ParsePrice strips the currency sign and thousands separators.
func ParsePrice(s string) (float64, error) {
	s = strings.NewReplacer("€", "", "\u0080", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	return strconv.ParseFloat(s, 64)
}

// CleanAddress lower-cases an address and fixes the register's recurring
// typos: stray backslashes and '*' typed for '8'.
func CleanAddress(s string) string {
	s = strings.ReplaceAll(s, `\`, "")
	s = strings.ReplaceAll(s, "*", "8")
	return strings.ToLower(strings.TrimSpace(s))
}

// AddressHash is the hex MD5 of a cleaned address, used to join sales of the
// same property.
func AddressHash(address string) string {
	sum := md5.Sum([]byte(address))
	return hex.EncodeToString(sum[:])
}

var provinces = map[string]string{}

func init() {
	for province, counties := range map[string][]string{
		"Connacht": {"Galway", "Leitrim", "Mayo", "Roscommon", "Sligo"},
		"Munster":  {"Limerick", "Tipperary", "Clare", "Kerry", "Cork", "Waterford"},
		"Leinster": {"Carlow", "Dublin", "Kildare", "Kilkenny", "Laois", "Longford", "Louth", "Meath", "Offaly", "Westmeath", "Wexford", "Wicklow"},
		"Ulster":   {"Antrim", "Armagh", "Cavan", "Donegal", "Down", "Fermanagh", "Londonderry", "Monaghan", "Tyrone"},
	} {
		for _, c := range counties {
			provinces[strings.ToLower(c)] = province
		}
	}
}

// Province maps a county to its province, or nil when unknown.
func Province(county string) any {
	if p, ok := provinces[strings.ToLower(strings.TrimSpace(county))]; ok {
		return p
	}
	return nil
}

var digits = regexp.MustCompile(`\d+`)

// AreaCode extracts the Dublin postal district number ("Dublin 6" -> "6").
// Postal codes without digits are returned as they are; empty ones are nil.
func AreaCode(postal string) any {
	if postal == "" {
		return nil
	}
	if m := digits.FindString(postal); m != "" {
		return m
	}
	return postal
}
