// Package refcache caches normalized reference documents keyed by canonical
// URL. Entries have no expiry.
package refcache

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rcarls/ghast/internal/indieweb"
)

// Codec converts a document to and from the field map stored in a hash.
type Codec interface {
	Encode(doc indieweb.Properties) (map[string]string, error)
	Decode(fields map[string]string) (indieweb.Properties, error)
}

// CodecFor returns the codec registered under name ("tagged" or "flat").
func CodecFor(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "tagged":
		return TaggedCodec{}, nil
	case "flat":
		return FlatCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown cache codec %q", name)
	}
}

const taggedVersion = "1"

// TaggedCodec stores the document as one JSON field next to its kind and a
// format version.
type TaggedCodec struct{}

// Encode implements Codec.
func (TaggedCodec) Encode(doc indieweb.Properties) (map[string]string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return map[string]string{
		"kind": doc.Type(),
		"v":    taggedVersion,
		"doc":  string(raw),
	}, nil
}

// Decode implements Codec.
func (TaggedCodec) Decode(fields map[string]string) (indieweb.Properties, error) {
	if v := fields["v"]; v != taggedVersion {
		return nil, fmt.Errorf("unsupported cache entry version %q", v)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(fields["doc"]), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return fromJSON(doc).(indieweb.Properties), nil
}

// FlatCodec stores one hash field per leaf, see Flatten.
type FlatCodec struct{}

// Encode implements Codec.
func (FlatCodec) Encode(doc indieweb.Properties) (map[string]string, error) {
	return Flatten(doc)
}

// Decode implements Codec.
func (FlatCodec) Decode(fields map[string]string) (indieweb.Properties, error) {
	return Unflatten(fields)
}

var segmentEscaper = strings.NewReplacer("%", "%25", ".", "%2E")
var segmentUnescaper = strings.NewReplacer("%2E", ".", "%25", "%")

// Flatten turns a nested document into dot separated paths with JSON encoded
// leaves. List elements use their index as the path segment. Dots inside keys
// are escaped.
func Flatten(doc indieweb.Properties) (map[string]string, error) {
	fields := make(map[string]string)
	for key, value := range doc {
		if err := flattenInto(fields, segmentEscaper.Replace(key), value); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

func flattenInto(fields map[string]string, path string, value any) error {
	switch v := value.(type) {
	case indieweb.Properties:
		return flattenMap(fields, path, v)
	case map[string]any:
		return flattenMap(fields, path, v)
	case []any:
		if len(v) == 0 {
			fields[path] = "[]"
			return nil
		}
		for i, item := range v {
			if err := flattenInto(fields, path+"."+strconv.Itoa(i), item); err != nil {
				return err
			}
		}
		return nil
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return flattenInto(fields, path, items)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", path, err)
		}
		fields[path] = string(raw)
		return nil
	}
}

func flattenMap(fields map[string]string, path string, m map[string]any) error {
	if len(m) == 0 {
		fields[path] = "{}"
		return nil
	}
	for key, item := range m {
		if err := flattenInto(fields, path+"."+segmentEscaper.Replace(key), item); err != nil {
			return err
		}
	}
	return nil
}

// Unflatten rebuilds a document produced by Flatten. Nodes whose children are
// exactly the indices 0..n-1 become lists.
func Unflatten(fields map[string]string) (indieweb.Properties, error) {
	root := make(map[string]any)
	for path, raw := range fields {
		var leaf any
		if err := json.Unmarshal([]byte(raw), &leaf); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", path, err)
		}
		segments := strings.Split(path, ".")
		node := root
		for i, segment := range segments {
			segment = segmentUnescaper.Replace(segment)
			if i == len(segments)-1 {
				node[segment] = leaf
				break
			}
			child, ok := node[segment].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[segment] = child
			}
			node = child
		}
	}
	for key, child := range root {
		root[key] = listify(child)
	}
	return fromJSON(root).(indieweb.Properties), nil
}

func listify(value any) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}
	for key, child := range m {
		m[key] = listify(child)
	}
	if len(m) == 0 {
		return m
	}
	indices := make([]int, 0, len(m))
	for key := range m {
		n, err := strconv.Atoi(key)
		if err != nil || n < 0 || strconv.Itoa(n) != key {
			return m
		}
		indices = append(indices, n)
	}
	sort.Ints(indices)
	for i, n := range indices {
		if i != n {
			return m
		}
	}
	list := make([]any, len(indices))
	for _, n := range indices {
		list[n] = m[strconv.Itoa(n)]
	}
	return list
}

// fromJSON converts decoded JSON maps into Properties, recursively.
func fromJSON(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(indieweb.Properties, len(v))
		for key, item := range v {
			out[key] = fromJSON(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = fromJSON(item)
		}
		return out
	default:
		return v
	}
}
