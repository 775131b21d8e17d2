package format

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// WriteEDN writes v as EDN. Values go through JSON first, so the output only
// holds maps, vectors, strings, numbers, booleans and nil. Map keys become
// kebab-case keywords when they can; ids, dates and other keys that are not
// valid keywords stay strings.
func WriteEDN(w io.Writer, v any, pretty bool) error {
	x, err := toPlain(v)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := ednEncoder{pretty: pretty, indent: 2}
	enc.value(&buf, x, 0)
	buf.WriteByte('\n')
	_, err = w.Write(buf.Bytes())
	return err
}

type ednEncoder struct {
	pretty bool
	indent int
}

func (e ednEncoder) value(buf *bytes.Buffer, v any, level int) {
	switch t := v.(type) {
	case nil:
		buf.WriteString("nil")
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case string:
		buf.WriteString(strconv.Quote(t))
	case float64:
		if t == float64(int64(t)) {
			buf.WriteString(strconv.FormatInt(int64(t), 10))
			return
		}
		buf.WriteString(strconv.FormatFloat(t, 'f', -1, 64))
	case []any:
		e.seq(buf, '[', ']', len(t), level, func(i int) { e.value(buf, t[i], level+1) })
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.seq(buf, '{', '}', len(keys), level, func(i int) {
			buf.WriteString(ednKey(keys[i]))
			buf.WriteByte(' ')
			e.value(buf, t[keys[i]], level+1)
		})
	default:
		buf.WriteString(strconv.Quote(fmt.Sprint(v)))
	}
}

func (e ednEncoder) seq(buf *bytes.Buffer, open, close byte, n, level int, item func(int)) {
	buf.WriteByte(open)
	if n == 0 {
		buf.WriteByte(close)
		return
	}
	sep := " "
	if e.pretty {
		sep = "\n" + strings.Repeat(" ", (level+1)*e.indent)
		buf.WriteString(sep)
	}
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteString(sep)
		}
		item(i)
	}
	if e.pretty {
		buf.WriteByte('\n')
		buf.WriteString(strings.Repeat(" ", level*e.indent))
	}
	buf.WriteByte(close)
}

func ednKey(k string) string {
	kw := strings.ReplaceAll(k, "_", "-")
	if isKeyword(kw) {
		return ":" + kw
	}
	return strconv.Quote(k)
}

func isKeyword(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || r == '-' || r == '.' || r == '?' || r == '!'):
		default:
			return false
		}
	}
	return true
}
