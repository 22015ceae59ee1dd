package xmldoc

import (
	"encoding/json"
)

// Document is a normalized XML element. Values are strings (attributes and text), nested Documents, or []Document; a key shared by an attribute and child tags holds a []any.
type Document map[string]any

// Value of the named attribute, or empty string.
func (d Document) Attr(name string) string {
	switch v := d[AttrKey(name)].(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			s, _ := v[0].(string)
			return s
		}
	}
	return ""
}

// Trimmed text content, or empty string.
func (d Document) Text() string {
	s, _ := d[TextKey].(string)
	return s
}

// Returns the child document with the given tag. If the tag was normalized as a sequence, the first element is returned.
func (d Document) Doc(tag string) Document {
	switch v := d[tag].(type) {
	case Document:
		return v
	case []Document:
		if len(v) > 0 {
			return v[0]
		}
	case []any:
		if docs := shared(v); len(docs) > 0 {
			return docs[0]
		}
	}
	return nil
}

// Returns all child documents with the given tag, regardless of whether it was normalized as a single document or a sequence.
func (d Document) Docs(tag string) []Document {
	switch v := d[tag].(type) {
	case Document:
		return []Document{v}
	case []Document:
		return v
	case []any:
		return shared(v)
	}
	return nil
}

// Child documents of a key shared with an attribute.
func shared(vals []any) []Document {
	var docs []Document
	for _, v := range vals {
		if d, ok := v.(Document); ok {
			docs = append(docs, d)
		}
	}
	return docs
}

// Walks a path of tags with [Document.Doc]. Returns nil if any step is missing.
func (d Document) Path(tags ...string) Document {
	cur := d
	for _, t := range tags {
		if cur == nil {
			return nil
		}
		cur = cur.Doc(t)
	}
	return cur
}

func (d Document) String() string {
	b, err := json.Marshal(d)
	if err != nil {
		return "{}"
	}
	return string(b)
}
