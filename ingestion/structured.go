package ingestion

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// flattenJSON renders every scalar in a JSON document as a "path: value"
// line. Object keys are visited in sorted order.
func flattenJSON(data []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var lines []string
	for {
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: json: %v", ErrMalformedContent, err)
		}
		lines = appendJSON(lines, "", v)
	}
	return strings.Join(lines, "\n"), nil
}

func appendJSON(lines []string, prefix string, v any) []string {
	switch val := v.(type) {
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(val)) {
			lines = appendJSON(lines, joinPath(prefix, k), val[k])
		}
	case []any:
		for i, item := range val {
			lines = appendJSON(lines, prefix+"["+strconv.Itoa(i)+"]", item)
		}
	case nil:
	default:
		text := strings.TrimSpace(fmt.Sprint(val))
		if text == "" {
			return lines
		}
		if prefix == "" {
			return append(lines, text)
		}
		lines = append(lines, prefix+": "+text)
	}
	return lines
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// flattenXML collects the character data of an XML document, one line per
// text node. Attribute values are kept as "name: value" lines.
func flattenXML(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var lines []string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: xml: %v", ErrMalformedContent, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			for _, attr := range t.Attr {
				if v := strings.TrimSpace(attr.Value); v != "" && attr.Name.Space != "xmlns" && attr.Name.Local != "xmlns" {
					lines = append(lines, attr.Name.Local+": "+v)
				}
			}
		case xml.CharData:
			if text := strings.TrimSpace(string(t)); text != "" {
				lines = append(lines, text)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
