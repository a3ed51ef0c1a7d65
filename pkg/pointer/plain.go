package pointer

import (
	"context"
	"strings"

	"github.com/moortools/moorage/moapi"
)

// ToPlainObject materializes the pointer graph into plain documents.
//
// With no paths, every declared pointer is resolved recursively; this is
// the expensive, exhaustive form, fine for small graphs and tests.  With
// dot-separated paths ("index", "index.rooms"), only nested pointers
// lying on a requested path are resolved; a path's
// last segment resolves everything below it.  Pointers off every requested
// path stay lazy and appear as {"ref": <uri>} with no contents, so
// materializing a large graph never implicitly forces a full fetch.
//
// The result for a resolved pointer is {"ref": <uri>, "contents": {...}}.
// Path segments that name raw fields or nothing at all are ignored: raw
// values are always included, and an absent field costs nothing.
//
// Errors:
//
//    - moorage-error-unknown-scheme -- when no adapter owns a scheme on a
//      resolved path
//    - moorage-error-remote-read -- on any download or parse failure
//    - moorage-error-schema-resolution -- when a declared pointer field's
//      value is not a well-formed URI string
//    - moorage-error-depth-exceeded -- when the graph descends past the
//      depth budget
func (p *Pointer) ToPlainObject(ctx context.Context, resolvedPaths ...string) (moapi.Document, error) {
	if len(resolvedPaths) == 0 {
		return p.plainObject(ctx, nil, true)
	}
	return p.plainObject(ctx, buildPathTree(resolvedPaths), false)
}

// pathNode is one level of the requested-path trie.  terminal marks a path
// ending here, which resolves the whole subtree below this field.
type pathNode struct {
	children map[string]*pathNode
	terminal bool
}

func buildPathTree(paths []string) *pathNode {
	root := &pathNode{children: map[string]*pathNode{}}
	for _, path := range paths {
		node := root
		for _, seg := range strings.Split(path, ".") {
			if seg == "" {
				continue
			}
			next, ok := node.children[seg]
			if !ok {
				next = &pathNode{children: map[string]*pathNode{}}
				node.children[seg] = next
			}
			node = next
		}
		node.terminal = true
	}
	return root
}

func (p *Pointer) plainObject(ctx context.Context, node *pathNode, all bool) (moapi.Document, error) {
	contents, err := p.resolve(ctx)
	if err != nil {
		return nil, err
	}
	out := make(moapi.Document, len(contents))
	for k, v := range contents {
		child, isPointer := v.(*Pointer)
		if !isPointer {
			out[k] = v
			continue
		}
		var sub *pathNode
		if node != nil {
			sub = node.children[k]
		}
		switch {
		case all || (sub != nil && sub.terminal):
			plain, err := child.plainObject(ctx, nil, true)
			if err != nil {
				return nil, err
			}
			out[k] = plain
		case sub != nil:
			plain, err := child.plainObject(ctx, sub, false)
			if err != nil {
				return nil, err
			}
			out[k] = plain
		default:
			out[k] = moapi.Document{"ref": string(child.uri)}
		}
	}
	return moapi.Document{
		"ref":      string(p.uri),
		"contents": map[string]interface{}(out),
	}, nil
}
