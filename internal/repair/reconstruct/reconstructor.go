package reconstruct

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/pdfmend/internal/core/document"
	"github.com/vietddude/pdfmend/internal/repair/metrics"
)

// ObjectParser parses a single object or bare value.
type ObjectParser interface {
	ParseObject(data []byte) (document.Value, *document.Reference, error)
}

var (
	typeNameRe   = regexp.MustCompile(`/Type\s*/([A-Za-z]+)`)
	versionRe    = regexp.MustCompile(`%PDF-(\d+\.\d+)`)
	lenientRe    = regexp.MustCompile(`/([A-Za-z0-9_.#-]+)\s*(/[A-Za-z0-9_.#-]+|\d+\s+\d+\s+R|-?\d+\.\d*|-?\d+|\([^()]*\)|true|false|null)`)
	lenientRefRe = regexp.MustCompile(`^(\d+)\s+(\d+)\s+R$`)
	graphicsOpRe = regexp.MustCompile(`\s(re|m|l|c|cm|f|S|h)\s`)
)

// Reconstructor rebuilds documents from fragments.
type Reconstructor struct {
	cfg    Config
	parser ObjectParser
	log    *slog.Logger
}

// New creates a reconstructor. parser may be nil, in which case only lenient
// extraction is used.
func New(cfg Config, parser ObjectParser, logger *slog.Logger) *Reconstructor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinFragmentSize <= 0 {
		cfg.MinFragmentSize = DefaultConfig().MinFragmentSize
	}
	if cfg.MaxFragments <= 0 {
		cfg.MaxFragments = DefaultConfig().MaxFragments
	}
	return &Reconstructor{cfg: cfg, parser: parser, log: logger.With("component", "reconstruct")}
}

type recovered struct {
	fragment int
	ref      *document.Reference
	value    document.Value
	nodeType document.NodeType
}

// Reconstruct never fails: with nothing salvageable it returns a document
// holding only a synthetic catalog.
func (r *Reconstructor) Reconstruct(ctx context.Context, data []byte) *Result {
	res := &Result{}
	fragments := fragment(r.cfg, data)
	for _, f := range fragments {
		res.Events = append(res.Events, Event{EventFragmentDiscovered, f.ID, fmt.Sprintf("%s at offset %d", f.Type, f.Offset)})
	}
	res.Stats.FragmentsProcessed = len(fragments)

	for _, ev := range r.analyze(ctx, fragments) {
		if ev.Type == EventHeuristicApplied {
			res.Stats.HeuristicsApplied++
		}
		res.Events = append(res.Events, ev)
	}

	var objects []recovered
	for i := range fragments {
		f := &fragments[i]
		if f.Type != FragmentObject {
			continue
		}
		obj, ok, ev := r.reconstructObject(f)
		res.Events = append(res.Events, ev)
		if !ok {
			res.Stats.ObjectsSkipped++
			continue
		}
		objects = append(objects, obj)
		if obj.nodeType != document.NodeUnknown {
			res.Stats.ObjectsRecovered++
		}
	}

	res.Events = append(res.Events, inferStructure(objects)...)
	doc, assembled, events, resolved := r.assemble(fragments, objects)
	res.Events = append(res.Events, events...)
	res.Stats.ReferencesResolved = resolved
	res.Document = doc
	res.Assembled = assembled
	res.Fragments = fragments
	res.Confidence = confidence(fragments, res.Stats.ObjectsRecovered, assembled)

	metrics.ReconstructionFragments.Observe(float64(len(fragments)))
	metrics.ReconstructionConfidence.Set(res.Confidence)
	r.log.Debug("Reconstruction complete",
		"fragments", len(fragments),
		"objects", res.Stats.ObjectsRecovered,
		"confidence", res.Confidence,
	)
	return res
}

// analyze types fragments concurrently. Each goroutine owns one fragment.
func (r *Reconstructor) analyze(ctx context.Context, fragments []Fragment) []Event {
	perFragment := make([][]Event, len(fragments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range fragments {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				perFragment[i] = []Event{{EventErrorEncountered, fragments[i].ID, "analysis cancelled"}}
				return nil
			}
			perFragment[i] = r.analyzeFragment(&fragments[i])
			return nil
		})
	}
	_ = g.Wait()

	var events []Event
	for _, ev := range perFragment {
		events = append(events, ev...)
	}
	return events
}

func (r *Reconstructor) analyzeFragment(f *Fragment) []Event {
	var events []Event
	if f.Type == FragmentUnknown && r.cfg.EnableHeuristics {
		if open := bytes.Index(f.Data, []byte("<<")); open >= 0 && bytes.Contains(f.Data[open:], []byte(">>")) {
			f.Type = FragmentObject
			f.Confidence = 0.3
			events = append(events, Event{EventHeuristicApplied, f.ID, "dictionary syntax in unknown fragment"})
		}
	}

	if f.Type == FragmentObject || f.Type == FragmentStream {
		if m := typeNameRe.FindSubmatch(f.Data); m != nil {
			f.NodeType = document.InferType(document.Dict{"Type": document.Name(m[1])})
			f.adjust(0.2)
		} else if f.Type == FragmentStream || bytes.Contains(f.Data, []byte("stream")) {
			f.NodeType = document.NodeContentStream
			f.adjust(0.2)
		}
	}

	if f.NodeType == document.NodeContentStream {
		switch {
		case bytes.Contains(f.Data, []byte("BT")) && bytes.Contains(f.Data, []byte("ET")):
			f.Hints = append(f.Hints, HintText)
		case graphicsOpRe.Match(f.Data):
			f.Hints = append(f.Hints, HintGraphics)
		}
	}
	return events
}

// reconstructObject tries a strict parse, then lenient key extraction, then
// the raw bytes.
func (r *Reconstructor) reconstructObject(f *Fragment) (recovered, bool, Event) {
	var ref *document.Reference
	if f.ObjectNumber >= 0 {
		ref = &document.Reference{Number: f.ObjectNumber}
	}

	if r.parser != nil {
		if v, parsedRef, err := r.parser.ParseObject(f.Data); err == nil {
			if parsedRef != nil {
				ref = parsedRef
			}
			return recovered{f.ID, ref, v, document.InferType(v)}, true,
				Event{EventObjectReconstructed, f.ID, "parsed"}
		}
	}

	if d := lenientDict(f.Data); len(d) > 0 {
		return recovered{f.ID, ref, d, document.InferType(d)}, true,
			Event{EventObjectReconstructed, f.ID, fmt.Sprintf("lenient extraction of %d keys", len(d))}
	}

	switch {
	case r.cfg.PreserveUnknownObjects:
		return recovered{f.ID, ref, document.String(bytes.Clone(f.Data)), document.NodeUnknown}, true,
			Event{EventErrorEncountered, f.ID, "kept raw bytes"}
	case r.cfg.SkipCorruptedObjects:
		return recovered{}, false, Event{EventErrorEncountered, f.ID, "skipped unparseable object"}
	default:
		return recovered{f.ID, ref, document.Null{}, document.NodeUnknown}, true,
			Event{EventErrorEncountered, f.ID, "unparseable object kept as null"}
	}
}

func lenientDict(data []byte) document.Dict {
	open := bytes.Index(data, []byte("<<"))
	if open < 0 {
		return nil
	}
	d := document.Dict{}
	for _, m := range lenientRe.FindAllSubmatch(data[open:], -1) {
		d[document.Name(m[1])] = lenientValue(string(m[2]))
	}
	return d
}

func lenientValue(s string) document.Value {
	switch {
	case s[0] == '/':
		return document.Name(s[1:])
	case s[0] == '(':
		return document.String(s[1 : len(s)-1])
	case s == "true" || s == "false":
		return document.Bool(s == "true")
	case s == "null":
		return document.Null{}
	}
	if m := lenientRefRe.FindStringSubmatch(s); m != nil {
		num, _ := strconv.Atoi(m[1])
		gen, _ := strconv.Atoi(m[2])
		return document.Reference{Number: num, Generation: gen}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return document.Integer(n)
	}
	f, _ := strconv.ParseFloat(s, 64)
	return document.Real(f)
}

func isCatalogLike(v document.Value) bool {
	d, ok := document.DictOf(v)
	if !ok {
		return false
	}
	typ, hasType := d.Name("Type")
	return typ == "Catalog" || (!hasType && d.Has("Pages"))
}

func isPageLike(v document.Value) bool {
	d, ok := document.DictOf(v)
	if !ok {
		return false
	}
	typ, _ := d.Name("Type")
	return typ == "Page" || (d.Has("Parent") && d.Has("MediaBox"))
}

func inferStructure(objects []recovered) []Event {
	var events []Event
	for i := range objects {
		o := &objects[i]
		switch {
		case isCatalogLike(o.value):
			o.nodeType = document.NodeCatalog
			events = append(events, Event{EventStructureInferred, o.fragment, "catalog candidate"})
		case isPageLike(o.value):
			o.nodeType = document.NodePage
			events = append(events, Event{EventStructureInferred, o.fragment, "page candidate"})
		}
	}
	return events
}

func (r *Reconstructor) assemble(fragments []Fragment, objects []recovered) (*document.Document, bool, []Event, int) {
	version := "1.4"
	for _, f := range fragments {
		if f.Type == FragmentHeader {
			if m := versionRe.FindSubmatch(f.Data); m != nil {
				version = string(m[1])
			}
			break
		}
	}

	doc := document.New(version)
	g := doc.Graph
	byNumber := make(map[int]document.NodeID)
	nodes := make([]document.NodeID, len(objects))
	var (
		root    document.NodeID
		hasRoot bool
		maxNum  int
	)
	for i, o := range objects {
		id := g.CreateNode(o.nodeType, o.value)
		nodes[i] = id
		if o.ref != nil {
			if err := g.AssignObject(id, *o.ref); err != nil {
				r.log.Warn("Failed to bind recovered object", "ref", o.ref.String(), "err", err)
				continue
			}
			byNumber[o.ref.Number] = id
			maxNum = max(maxNum, o.ref.Number)
			doc.Objects = append(doc.Objects, document.Object{Ref: *o.ref, Value: o.value, Offset: fragments[o.fragment].Offset})
		}
		if !hasRoot && o.nodeType == document.NodeCatalog {
			root, hasRoot = id, true
		}
	}

	doc.Trailer = document.Dict{"Size": document.Integer(maxNum + 1)}
	if hasRoot {
		if n, ok := g.Node(root); ok && n.Object != nil {
			doc.Trailer["Root"] = *n.Object
		}
	} else {
		root = g.CreateNode(document.NodeCatalog, document.SyntheticCatalog())
	}
	if err := g.SetRoot(root); err != nil {
		r.log.Warn("Failed to set document root", "err", err)
	}

	var events []Event
	for _, id := range nodes {
		if id == root {
			continue
		}
		n, _ := g.Node(id)
		switch n.Type {
		case document.NodePages, document.NodeOutline, document.NodeMetadata:
			if err := g.AddEdge(root, id, document.EdgeChild); err != nil {
				r.log.Warn("Failed to link child to root", "err", err)
			}
		}
	}

	resolved := 0
	for i, o := range objects {
		for _, ref := range document.References(o.value) {
			to, ok := byNumber[ref.Number]
			if !ok {
				continue
			}
			if err := g.AddEdge(nodes[i], to, document.EdgeReference); err != nil {
				r.log.Warn("Failed to link reference", "ref", ref.String(), "err", err)
				continue
			}
			resolved++
			events = append(events, Event{EventReferenceResolved, o.fragment, ref.String()})
		}
	}

	recoveredAny := false
	for _, o := range objects {
		if o.nodeType != document.NodeUnknown {
			recoveredAny = true
			break
		}
	}
	return doc, recoveredAny, events, resolved
}

// confidence blends fragment confidence with the object recovery rate.
func confidence(fragments []Fragment, objects int, assembled bool) float64 {
	if len(fragments) == 0 {
		return 0
	}
	sum := 0.0
	for _, f := range fragments {
		sum += f.Confidence
	}
	c := (sum/float64(len(fragments)) + float64(objects)/float64(len(fragments))) / 2
	if assembled {
		c += 0.2
	}
	return clamp(c)
}
