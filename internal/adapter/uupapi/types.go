package uupapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/vertextoedge/uupfetch/internal/domain"
)

// Endpoints
const (
	endpointListBuilds    = "listid.php"
	endpointListLanguages = "listlangs.php"
	endpointListEditions  = "listeditions.php"
	endpointGetFiles      = "get.php"
)

// envelope is the common shape of every API response
type envelope struct {
	Response struct {
		Error json.RawMessage `json:"error"`
	} `json:"response"`
}

// apiError returns the embedded application error, if any
func (e *envelope) apiError() *domain.APIError {
	raw := bytes.TrimSpace(e.Response.Error)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		msg = string(raw)
	}
	return &domain.APIError{Message: msg}
}

type listBuildsResponse struct {
	Response struct {
		APIVersion string          `json:"apiVersion"`
		Builds     json.RawMessage `json:"builds"`
	} `json:"response"`
}

type listLanguagesResponse struct {
	Response struct {
		Langs          phpMap[string] `json:"langs"`
		LangFancyNames phpMap[string] `json:"langFancyNames"`
	} `json:"response"`
}

type listEditionsResponse struct {
	Response struct {
		Editions    []string `json:"editions"`
		EditionList []string `json:"editionList"`
	} `json:"response"`
}

type getFilesResponse struct {
	Response struct {
		UpdateName string           `json:"updateName"`
		Arch       flexString       `json:"arch"`
		Build      flexString       `json:"build"`
		Files      phpMap[fileJSON] `json:"files"`
	} `json:"response"`
}

type buildJSON struct {
	UUID    string     `json:"uuid"`
	Title   string     `json:"title"`
	Build   flexString `json:"build"`
	Arch    flexString `json:"arch"`
	Created flexInt    `json:"created"`
}

func (b buildJSON) toDomain() domain.BuildSummary {
	return domain.BuildSummary{
		UUID:    b.UUID,
		Title:   b.Title,
		Build:   string(b.Build),
		Arch:    string(b.Arch),
		Created: b.Created.Value,
	}
}

type fileJSON struct {
	URL  string  `json:"url"`
	SHA1 string  `json:"sha1"`
	Size flexInt `json:"size"`
}

func (f fileJSON) toDomain(name string) domain.FileDescriptor {
	fd := domain.FileDescriptor{
		Filename: name,
		URL:      f.URL,
		SHA1:     strings.ToLower(strings.TrimSpace(f.SHA1)),
	}
	if f.Size.Value != nil && *f.Size.Value >= 0 {
		fd.Size = f.Size.Value
	}
	return fd
}

// flexInt accepts a JSON number or numeric string. Anything else,
// including null, leaves Value nil.
type flexInt struct {
	Value *int64
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	f.Value = nil
	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		s = strings.TrimSpace(str)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.Value = &n
		return nil
	}
	if fl, err := strconv.ParseFloat(s, 64); err == nil && fl == math.Trunc(fl) && math.Abs(fl) < math.MaxInt64 {
		n := int64(fl)
		f.Value = &n
	}
	return nil
}

// phpMap decodes a JSON object. PHP encodes an empty associative array as
// [], which decodes to an empty map.
type phpMap[V any] map[string]V

func (m *phpMap[V]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*m = nil
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		if len(items) > 0 {
			return &json.UnmarshalTypeError{Value: "array", Type: reflect.TypeOf(*m)}
		}
		*m = phpMap[V]{}
		return nil
	}

	var plain map[string]V
	if err := json.Unmarshal(b, &plain); err != nil {
		return err
	}
	*m = plain
	return nil
}

// flexString accepts a JSON string or number
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*f = ""
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*f = flexString(str)
	default:
		*f = flexString(s)
	}
	return nil
}

// normalizeBuilds accepts the builds field as an array, or as an object keyed
// by UUID whose values are the same objects. Object order is preserved.
func normalizeBuilds(raw json.RawMessage) ([]domain.BuildSummary, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []domain.BuildSummary{}, nil
	}

	var items []buildJSON
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
	case '{':
		dec := json.NewDecoder(bytes.NewReader(raw))
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			var item buildJSON
			if err := dec.Decode(&item); err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unexpected builds value: %.20s", raw)
	}

	builds := make([]domain.BuildSummary, 0, len(items))
	for _, item := range items {
		builds = append(builds, item.toDomain())
	}
	return builds, nil
}
