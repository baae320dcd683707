package mailbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

var api = sonic.ConfigStd

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// toUTF8 returns data as UTF-8, transcoding from the detected charset when
// a legacy producer wrote something else.
func toUTF8(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}

	name := detectCharset(data)
	r, err := charset.NewReader(bytes.NewReader(data), "text/plain; charset="+name)
	if err != nil {
		return nil, fmt.Errorf("transcode from %s: %w", name, err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("transcode from %s: %w", name, err)
	}
	return out, nil
}

func detectCharset(data []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil || result.Charset == "" {
		return "windows-1252"
	}
	return strings.ToLower(result.Charset)
}

// syntaxOffset locates the first syntax error in data, or -1.
func syntaxOffset(data []byte) int64 {
	var probe interface{}
	err := json.Unmarshal(data, &probe)

	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return syn.Offset
	}
	var typ *json.UnmarshalTypeError
	if errors.As(err, &typ) {
		return typ.Offset
	}
	return -1
}

// isObject reports whether data holds a single JSON object
func isObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{' && api.Valid(trimmed)
}
