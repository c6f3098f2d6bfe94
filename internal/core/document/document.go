package document

// Object is an indirect object as found in the body.
type Object struct {
	Ref    Reference
	Value  Value
	Offset int
}

// Document is a parsed or reconstructed document.
type Document struct {
	Version string
	Objects []Object
	Trailer Dict
	Graph   Graph
}

// New returns an empty document backed by a fresh MemoryGraph.
func New(version string) *Document {
	return &Document{Version: version, Graph: NewMemoryGraph()}
}

// Build assembles a document from parsed objects. One node is created per
// object, the trailer /Root becomes the graph root and every reference that
// resolves to a parsed object becomes an edge.
func Build(version string, objects []Object, trailer Dict) *Document {
	doc := New(version)
	doc.Objects = objects
	doc.Trailer = trailer

	ids := make(map[int]NodeID, len(objects))
	nodeOf := make([]NodeID, len(objects))
	for i, obj := range objects {
		id := doc.Graph.CreateNode(InferType(obj.Value), obj.Value)
		_ = doc.Graph.AssignObject(id, obj.Ref)
		ids[obj.Ref.Number] = id
		nodeOf[i] = id
	}

	if root, ok := trailer.Ref("Root"); ok {
		if id, found := ids[root.Number]; found {
			_ = doc.Graph.SetRoot(id)
		}
	}

	for i, obj := range objects {
		for _, ref := range References(obj.Value) {
			if to, ok := ids[ref.Number]; ok {
				kind := EdgeReference
				if parentKind(obj.Value, ref) {
					kind = EdgeChild
				}
				_ = doc.Graph.AddEdge(nodeOf[i], to, kind)
			}
		}
	}
	return doc
}

// parentKind reports whether ref is reached through /Pages or /Kids.
func parentKind(v Value, ref Reference) bool {
	d, ok := DictOf(v)
	if !ok {
		return false
	}
	if r, ok := d.Ref("Pages"); ok && r == ref {
		return true
	}
	if kids, ok := d["Kids"].(Array); ok {
		for _, k := range kids {
			if r, ok := k.(Reference); ok && r == ref {
				return true
			}
		}
	}
	return false
}

// Object returns the last definition of object number n.
func (d *Document) Object(n int) (Object, bool) {
	for i := len(d.Objects) - 1; i >= 0; i-- {
		if d.Objects[i].Ref.Number == n {
			return d.Objects[i], true
		}
	}
	return Object{}, false
}

// InferType classifies a value by its /Type entry and shape.
func InferType(v Value) NodeType {
	d, ok := DictOf(v)
	if !ok {
		return NodeOther
	}
	typ, _ := d.Name("Type")
	switch typ {
	case "Catalog":
		return NodeCatalog
	case "Pages":
		return NodePages
	case "Page":
		return NodePage
	case "Font":
		return NodeFont
	case "Outlines", "Outline":
		return NodeOutline
	case "Metadata":
		return NodeMetadata
	}
	if _, isStream := v.(Stream); isStream {
		return NodeContentStream
	}
	return NodeOther
}

// SyntheticCatalog returns the dictionary used for a synthesized root.
func SyntheticCatalog() Dict {
	return Dict{"Type": Name("Catalog")}
}
