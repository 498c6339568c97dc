package syllabus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/soma/core"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// CurrentVersion is the document version written by Export.
const CurrentVersion = 1

var errUnknownFormat = errors.New("unknown format, expected one of json, yaml or toml")

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	}
	return "", errUnknownFormat
}

// FormatFromContentType maps a Content-Type header to a format.
func FormatFromContentType(contentType string) (Format, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	switch mediaType {
	case "application/json":
		return FormatJSON, true
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return FormatYAML, true
	case "application/toml", "text/toml":
		return FormatTOML, true
	}
	return "", false
}

// FormatFromFilename guesses the format from a file extension.
func FormatFromFilename(name string) (Format, error) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return "", errUnknownFormat
	}
	return ParseFormat(name[idx+1:])
}

func (f Format) ContentType() string {
	switch f {
	case FormatYAML:
		return "application/yaml"
	case FormatTOML:
		return "application/toml"
	default:
		return "application/json"
	}
}

// Document describes one goal tree. Depth implies kind: stream, subject, chapter, topic.
type Document struct {
	Version int    `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	Project string `json:"project,omitempty" yaml:"project,omitempty" toml:"project,omitempty"`
	Goal    Goal   `json:"goal" yaml:"goal" toml:"goal"`
}

type Goal struct {
	Title       string `json:"title" yaml:"title" toml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Color       string `json:"color,omitempty" yaml:"color,omitempty" toml:"color,omitempty"`
	TargetDate  string `json:"target_date,omitempty" yaml:"target_date,omitempty" toml:"target_date,omitempty"`
	Children    []Item `json:"children,omitempty" yaml:"children,omitempty" toml:"children,omitempty"`
}

type Item struct {
	Title       string   `json:"title" yaml:"title" toml:"title"`
	Weightage   *float64 `json:"weightage,omitempty" yaml:"weightage,omitempty" toml:"weightage,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Children    []Item   `json:"children,omitempty" yaml:"children,omitempty" toml:"children,omitempty"`
}

// toJSON re-encodes a document of any format as canonical JSON.
func toJSON(data []byte, format Format) ([]byte, error) {
	var raw interface{}
	switch format {
	case FormatJSON:
		return data, nil
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrap(err, "parsing yaml")
		}
	case FormatTOML:
		var m map[string]interface{}
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil, errors.Wrap(err, "parsing toml")
		}
		raw = m
	default:
		return nil, errUnknownFormat
	}
	out, err := json.Marshal(plainDates(raw))
	return out, errors.Wrap(err, "re-encoding document")
}

// plainDates replaces the timestamps yaml and toml decode from unquoted
// dates with their calendar form, so they validate like quoted ones.
func plainDates(v interface{}) interface{} {
	switch v := v.(type) {
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format(core.DateLayout)
		}
		return v.Format(time.RFC3339)
	case map[string]interface{}:
		for k, item := range v {
			v[k] = plainDates(item)
		}
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, item := range v {
			m[fmt.Sprint(k)] = plainDates(item)
		}
		return m
	case []interface{}:
		for i, item := range v {
			v[i] = plainDates(item)
		}
	case []map[string]interface{}:
		for i, item := range v {
			v[i] = plainDates(item).(map[string]interface{})
		}
	}
	return v
}

// Encode writes doc in the given format.
func Encode(doc Document, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		return data, errors.Wrap(err, "encoding json")
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, errors.Wrap(err, "encoding yaml")
		}
		_ = enc.Close()
		return buf.Bytes(), nil
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
			return nil, errors.Wrap(err, "encoding toml")
		}
		return buf.Bytes(), nil
	}
	return nil, errUnknownFormat
}
