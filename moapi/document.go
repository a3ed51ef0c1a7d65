package moapi

import (
	"bytes"
	"fmt"

	"github.com/facette/natsort"
	"github.com/ipld/go-ipld-prime/codec/dagjson"
	ipldjson "github.com/ipld/go-ipld-prime/codec/json"
	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/node/basicnode"
	rfmtjson "github.com/polydawn/refmt/json"
)

// Document is the parsed content of one off-chain document: a mapping from
// field name to value.  Values are plain Go data (string, bool, int64,
// float64, nil, []byte, []interface{}, or a nested Document); higher layers
// may additionally substitute their own types for declared pointer fields.
type Document map[string]interface{}

// DecodeDocument parses raw JSON bytes into a Document.
// The top-level value must be a map.
//
// Errors:
//
//    - moorage-error-serialization -- when the bytes are not valid JSON,
//      or the top-level value is not a map
func DecodeDocument(raw []byte) (Document, error) {
	nb := basicnode.Prototype.Any.NewBuilder()
	if err := ipldjson.Decode(nb, bytes.NewReader(raw)); err != nil {
		return nil, ErrorSerialization("parsing document", err)
	}
	n := nb.Build()
	if n.Kind() != datamodel.Kind_Map {
		return nil, ErrorSerialization("parsing document",
			fmt.Errorf("top-level value is a %s, expected a map", n.Kind()))
	}
	v, err := nodeToGo(n)
	if err != nil {
		return nil, ErrorSerialization("parsing document", err)
	}
	return Document(v.(map[string]interface{})), nil
}

// EncodeDocument serializes a Document to JSON bytes.
// Map keys are emitted in natural sort order, so output is canonical.
//
// Errors:
//
//    - moorage-error-serialization -- when a value has a type with no JSON
//      representation
func EncodeDocument(doc Document) ([]byte, error) {
	nb := basicnode.Prototype.Any.NewBuilder()
	if err := assemble(nb, map[string]interface{}(doc)); err != nil {
		return nil, ErrorSerialization("encoding document", err)
	}
	var buf bytes.Buffer
	// codec/json's Encode pretty-prints; marshal with a compact encoder so
	// output stays one canonical line.
	err := dagjson.Marshal(nb.Build(), rfmtjson.NewEncoder(&buf, rfmtjson.EncodeOptions{}), dagjson.EncodeOptions{
		EncodeLinks: false,
		EncodeBytes: false,
	})
	if err != nil {
		return nil, ErrorSerialization("encoding document", err)
	}
	return buf.Bytes(), nil
}

func nodeToGo(n datamodel.Node) (interface{}, error) {
	switch n.Kind() {
	case datamodel.Kind_Map:
		m := make(map[string]interface{}, n.Length())
		it := n.MapIterator()
		for !it.Done() {
			kn, vn, err := it.Next()
			if err != nil {
				return nil, err
			}
			k, err := kn.AsString()
			if err != nil {
				return nil, err
			}
			v, err := nodeToGo(vn)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, nil
	case datamodel.Kind_List:
		l := make([]interface{}, 0, n.Length())
		it := n.ListIterator()
		for !it.Done() {
			_, vn, err := it.Next()
			if err != nil {
				return nil, err
			}
			v, err := nodeToGo(vn)
			if err != nil {
				return nil, err
			}
			l = append(l, v)
		}
		return l, nil
	case datamodel.Kind_String:
		return n.AsString()
	case datamodel.Kind_Bool:
		return n.AsBool()
	case datamodel.Kind_Int:
		return n.AsInt()
	case datamodel.Kind_Float:
		return n.AsFloat()
	case datamodel.Kind_Null:
		return nil, nil
	case datamodel.Kind_Bytes:
		return n.AsBytes()
	default:
		return nil, fmt.Errorf("unrepresentable node kind %s", n.Kind())
	}
}

func assemble(na datamodel.NodeAssembler, v interface{}) error {
	switch v := v.(type) {
	case nil:
		return na.AssignNull()
	case string:
		return na.AssignString(v)
	case bool:
		return na.AssignBool(v)
	case int:
		return na.AssignInt(int64(v))
	case int64:
		return na.AssignInt(v)
	case float64:
		return na.AssignFloat(v)
	case []byte:
		return na.AssignBytes(v)
	case URI:
		return na.AssignString(string(v))
	case Document:
		return assemble(na, map[string]interface{}(v))
	case map[string]interface{}:
		ma, err := na.BeginMap(int64(len(v)))
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		natsort.Sort(keys)
		for _, k := range keys {
			if err := ma.AssembleKey().AssignString(k); err != nil {
				return err
			}
			if err := assemble(ma.AssembleValue(), v[k]); err != nil {
				return err
			}
		}
		return ma.Finish()
	case []interface{}:
		la, err := na.BeginList(int64(len(v)))
		if err != nil {
			return err
		}
		for _, e := range v {
			if err := assemble(la.AssembleValue(), e); err != nil {
				return err
			}
		}
		return la.Finish()
	default:
		return fmt.Errorf("unrepresentable value type %T", v)
	}
}
