// Package dataset 负责表格文件的解析、只读 SQL 沙箱与提示词用的表结构描述。
package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/model"

	"github.com/xuri/excelize/v2"
)

// 列类型，与 SQLite 的类型亲和性对应
const (
	TypeInteger = "INTEGER"
	TypeReal    = "REAL"
	TypeText    = "TEXT"
)

var (
	// ErrUnsupportedFormat 表示文件扩展名不受支持。
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	// ErrNoRows 表示文件没有任何数据行。
	ErrNoRows = errors.New("dataset has no data rows")
)

var identRe = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// Supported 报告扩展名是否为可解析的表格格式。
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx", ".json":
		return true
	}
	return false
}

// ParseFile 将一个上传文件解析为表。表名由调用方分配。
// 不支持的扩展名返回校验错误，无法读取或没有数据行返回解析错误。
func ParseFile(filename string, data []byte) (*model.Table, error) {
	var (
		header  []string
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		header, records, err = readCSV(data)
	case ".xlsx":
		header, records, err = readXLSX(data)
	case ".json":
		header, records, err = readJSON(data)
	default:
		return nil, apperr.Validation(fmt.Sprintf("unsupported file type: %s", filename), ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, apperr.Parse(fmt.Sprintf("error loading file %s", filename), err)
	}
	if len(header) == 0 || len(records) == 0 {
		return nil, apperr.Parse(fmt.Sprintf("file %s contains no data rows", filename), ErrNoRows)
	}

	t := &model.Table{
		SourceFile: filename,
		Columns:    uniqueColumns(header),
	}
	t.Types, t.Rows = typeColumns(len(t.Columns), records)
	return t, nil
}

func readCSV(data []byte) ([]string, [][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if len(rec) > len(header) {
			line, _ := r.FieldPos(0)
			return nil, nil, fmt.Errorf("line %d: expected %d fields, saw %d", line, len(header), len(rec))
		}
		if isBlank(rec) {
			continue
		}
		records = append(records, rec)
	}
	return header, records, nil
}

// readXLSX 读取工作簿的第一个工作表，首行为表头。
func readXLSX(data []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}
	header := rows[0]
	var records [][]string
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		if len(row) > len(header) {
			row = row[:len(header)]
		}
		records = append(records, row)
	}
	return header, records, nil
}

// readJSON 读取对象数组。列顺序按键首次出现的顺序。
func readJSON(data []byte) ([]string, [][]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, nil, fmt.Errorf("expected a JSON array of records: %w", err)
	}

	var header []string
	index := map[string]int{}
	objects := make([]map[string]string, 0, len(items))
	for i, raw := range items {
		keys, values, err := decodeObject(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("record %d: %w", i, err)
		}
		for _, k := range keys {
			if _, ok := index[k]; !ok {
				index[k] = len(header)
				header = append(header, k)
			}
		}
		objects = append(objects, values)
	}

	records := make([][]string, 0, len(objects))
	for _, obj := range objects {
		rec := make([]string, len(header))
		for k, v := range obj {
			rec[index[k]] = v
		}
		records = append(records, rec)
	}
	return header, records, nil
}

// decodeObject 按键顺序读取一个 JSON 对象，值统一转为字符串。
func decodeObject(raw json.RawMessage) ([]string, map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, errors.New("not a JSON object")
	}

	var keys []string
	values := map[string]string{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		values[key] = cellString(v)
	}
	return keys, values, nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// uniqueColumns 为空列名补名，并对重复列名追加 .1、.2 后缀。
// SQLite 列名大小写不敏感，因此按小写判重。
func uniqueColumns(header []string) []string {
	out := make([]string, len(header))
	used := map[string]bool{}
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		candidate := name
		for n := 1; used[strings.ToLower(candidate)]; n++ {
			candidate = fmt.Sprintf("%s.%d", name, n)
		}
		used[strings.ToLower(candidate)] = true
		out[i] = candidate
	}
	return out
}

// typeColumns 推断每列类型并转换单元格。空单元格为 NULL。
func typeColumns(width int, records [][]string) ([]string, [][]any) {
	types := make([]string, width)
	for c := 0; c < width; c++ {
		types[c] = inferType(records, c)
	}

	rows := make([][]any, len(records))
	for r, rec := range records {
		row := make([]any, width)
		for c := 0; c < width; c++ {
			if c >= len(rec) {
				continue
			}
			row[c] = convert(rec[c], types[c])
		}
		rows[r] = row
	}
	return types, rows
}

func inferType(records [][]string, col int) string {
	typ := TypeInteger
	nonEmpty := false
	for _, rec := range records {
		if col >= len(rec) {
			continue
		}
		v := strings.TrimSpace(rec[col])
		if v == "" {
			continue
		}
		nonEmpty = true
		if typ == TypeInteger {
			if _, err := strconv.ParseInt(v, 10, 64); err == nil {
				continue
			}
			typ = TypeReal
		}
		if !isFloat(v) {
			return TypeText
		}
	}
	if !nonEmpty {
		return TypeText
	}
	return typ
}

func isFloat(v string) bool {
	f, err := strconv.ParseFloat(v, 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}

func convert(raw, typ string) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	switch typ {
	case TypeInteger:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case TypeReal:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return raw
}

// TableName 由文件名生成 SQL 标识符：去掉扩展名，非法字符替换为下划线。
// taken 中已存在的名称会追加数字后缀。
func TableName(filename string, taken map[string]bool) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	name := strings.Trim(identRe.ReplaceAllString(base, "_"), "_")
	if name == "" {
		name = "dataset"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "t_" + name
	}
	candidate := name
	for n := 2; taken[strings.ToLower(candidate)]; n++ {
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
	taken[strings.ToLower(candidate)] = true
	return candidate
}
