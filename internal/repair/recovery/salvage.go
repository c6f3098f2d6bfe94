package recovery

import (
	"bytes"
	"log/slog"
	"regexp"

	"github.com/vietddude/pdfmend/internal/core/document"
)

var sniffTypeRe = regexp.MustCompile(`/Type\s*/([A-Za-z]+)`)

// salvage builds a document from every obj ... endobj chunk it can find
// without reconstructing structure. Unparseable chunks follow the
// preserve/skip policy of cfg.
func salvage(data []byte, parser StructuralParser, cfg Config, log *slog.Logger) (doc *document.Document, kept, skipped int) {
	doc = document.New("1.4")
	g := doc.Graph
	var root document.NodeID
	hasRoot := false

	for _, r := range objectRegions(data) {
		chunk := data[r.header.Start:r.end]
		ref := document.Reference{Number: r.header.Number, Generation: r.header.Generation}

		value, nodeType, ok := salvageValue(chunk, parser, cfg)
		if !ok {
			skipped++
			continue
		}
		id := g.CreateNode(nodeType, value)
		if err := g.AssignObject(id, ref); err != nil {
			log.Warn("Failed to bind salvaged object", "ref", ref.String(), "err", err)
			skipped++
			continue
		}
		doc.Objects = append(doc.Objects, document.Object{Ref: ref, Value: value, Offset: r.header.Start})
		kept++
		if !hasRoot && nodeType == document.NodeCatalog {
			root, hasRoot = id, true
			doc.Trailer = document.Dict{"Root": ref}
		}
	}

	if !hasRoot {
		root = g.CreateNode(document.NodeCatalog, document.SyntheticCatalog())
	}
	if err := g.SetRoot(root); err != nil {
		log.Warn("Failed to set salvage root", "err", err)
	}
	return doc, kept, skipped
}

func salvageValue(chunk []byte, parser StructuralParser, cfg Config) (document.Value, document.NodeType, bool) {
	if v, _, err := parser.ParseObject(chunk); err == nil {
		return v, document.InferType(v), true
	}
	switch {
	case cfg.PreservePartialObjects:
		return document.String(bytes.Clone(chunk)), sniffType(chunk), true
	case cfg.SkipCorruptedObjects:
		return nil, document.NodeUnknown, false
	default:
		return document.Null{}, document.NodeUnknown, true
	}
}

// sniffType guesses a node type from raw bytes.
func sniffType(chunk []byte) document.NodeType {
	if m := sniffTypeRe.FindSubmatch(chunk); m != nil {
		if t := document.InferType(document.Dict{"Type": document.Name(m[1])}); t != document.NodeOther {
			return t
		}
	}
	if bytes.Contains(chunk, []byte("stream")) {
		return document.NodeContentStream
	}
	return document.NodeUnknown
}
