package recovery

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/infra/cos"
)

const (
	maxGenerations   = 3
	minRunLength     = 11
	deepObjectFloor  = 1000
	anomalyFactor    = 5
	byteAlphabetSize = 256
)

var splitKeywordRe = regexp.MustCompile(`\bend\s+(obj|stream)\b`)

// ExperimentalRecovery combines statistical cleanup with a small
// deterministic search over byte-level mutations.
type ExperimentalRecovery struct{}

func NewExperimentalRecovery() *ExperimentalRecovery { return &ExperimentalRecovery{} }

func (s *ExperimentalRecovery) Name() string    { return nameExperimental }
func (s *ExperimentalRecovery) Priority() uint8 { return 10 }

func (s *ExperimentalRecovery) CanHandle(domain.ErrorKind) bool { return true }

func (s *ExperimentalRecovery) Apply(c *Context) (StrategyResult, error) {
	data := c.Current
	var (
		notes []string
		fixes int
	)
	step := func(out []byte, n int, what string) {
		data = out
		if n > 0 {
			fixes += n
			notes = append(notes, fmt.Sprintf("%s: %d", what, n))
		}
	}

	out, n := blankAnomalousBytes(data)
	step(out, n, "frequency anomalies")
	out, n = collapseRuns(data)
	step(out, n, "collapsed runs")
	out, n = joinSplitKeywords(data)
	step(out, n, "split keywords")

	out, n = insertMissingEndobj(data)
	out, m := balanceObjects(out)
	step(out, n+m, "cross-validation")

	out, n = evolve(data)
	step(out, n, "evolution generations")
	out, n = deepAnalysis(data)
	step(out, n, "deep analysis")

	desc := "no anomalies found"
	if len(notes) > 0 {
		desc = strings.Join(notes, ", ")
	}
	return outcome(c.Current, data, ActionHeuristicPatch, fixes, desc), nil
}

// blankAnomalousBytes replaces control bytes that occur far more often than a
// uniform distribution would predict.
func blankAnomalousBytes(data []byte) ([]byte, int) {
	var counts [byteAlphabetSize]int
	total := 0
	for _, seg := range cos.TextSegments(data) {
		if !seg.Syntax() {
			continue
		}
		for _, b := range data[seg.Start:seg.End] {
			counts[b]++
		}
		total += seg.End - seg.Start
	}
	threshold := anomalyFactor * total / byteAlphabetSize
	var anomalous [byteAlphabetSize]bool
	found := false
	for b := 0; b < 32; b++ {
		if b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		if counts[b] > threshold {
			anomalous[b] = true
			found = true
		}
	}
	if !found {
		return data, 0
	}
	n := 0
	out := cos.MapText(data, func(text []byte) []byte {
		for i, b := range text {
			if anomalous[b] {
				text[i] = ' '
				n++
			}
		}
		return text
	})
	return out, n
}

// collapseRuns shrinks long runs of one non-printable byte to a single
// placeholder.
func collapseRuns(data []byte) ([]byte, int) {
	n := 0
	out := cos.MapText(data, func(text []byte) []byte {
		var b bytes.Buffer
		for i := 0; i < len(text); {
			j := i
			for j < len(text) && text[j] == text[i] {
				j++
			}
			if j-i >= minRunLength && !isPrintable(text[i]) {
				if text[i] == 0 {
					b.WriteByte(' ')
				} else {
					b.WriteByte('?')
				}
				n++
			} else {
				b.Write(text[i:j])
			}
			i = j
		}
		return b.Bytes()
	})
	return out, n
}

func isPrintable(b byte) bool {
	return (b >= 0x20 && b < 0x7F) || b == '\t' || b == '\n' || b == '\r'
}

func joinSplitKeywords(data []byte) ([]byte, int) {
	n := 0
	out := cos.MapText(data, func(text []byte) []byte {
		n += len(splitKeywordRe.FindAllIndex(text, -1))
		return splitKeywordRe.ReplaceAll(text, []byte("end$1"))
	})
	return out, n
}

// fitness scores how much a buffer looks like a well-formed document.
func fitness(data []byte) float64 {
	score := 0.0
	if bytes.HasPrefix(data, []byte(headerMagic)) {
		score += 10
	}
	for _, kw := range []string{"obj", "endobj", "xref", "trailer"} {
		if cos.IndexKeyword(data, kw, 0) >= 0 {
			score += 5
		}
	}
	if bytes.HasSuffix(bytes.TrimSpace(data), []byte(eofMarker)) {
		score += 10
	}
	score -= 0.1 * float64(bytes.Count(data, []byte{0}))
	objs, endobjs := countKeyword(data, "obj"), countKeyword(data, "endobj")
	diff := objs - endobjs
	if diff < 0 {
		diff = -diff
	}
	return score + 5 - float64(diff)
}

func countKeyword(data []byte, kw string) int {
	n := 0
	for at := cos.IndexKeyword(data, kw, 0); at >= 0; at = cos.IndexKeyword(data, kw, at+len(kw)) {
		n++
	}
	return n
}

type mutation func([]byte) []byte

func textMutation(fn func(byte) (byte, bool)) mutation {
	return func(data []byte) []byte {
		return cos.MapText(data, func(text []byte) []byte {
			out := text[:0]
			for _, b := range text {
				if r, keep := fn(b); keep {
					out = append(out, r)
				}
			}
			return out
		})
	}
}

var (
	stripNulls = textMutation(func(b byte) (byte, bool) { return b, b != 0 })
	ctrlSpace  = textMutation(func(b byte) (byte, bool) {
		if isStrayControl(b) {
			return ' ', true
		}
		return b, true
	})
	crToLF = func(data []byte) []byte {
		return cos.MapText(data, func(text []byte) []byte {
			out, _ := cleanLoneCR(text)
			return out
		})
	}
)

func cleanLoneCR(text []byte) ([]byte, int) {
	n := 0
	for i, b := range text {
		if b == '\r' && (i+1 == len(text) || text[i+1] != '\n') {
			text[i] = '\n'
			n++
		}
	}
	return text, n
}

// evolve runs a deterministic mutate-and-score search. A candidate replaces
// the current best only when it scores strictly higher.
func evolve(data []byte) ([]byte, int) {
	mutations := []mutation{
		stripNulls,
		ctrlSpace,
		crToLF,
		func(d []byte) []byte { return crToLF(ctrlSpace(stripNulls(d))) },
	}
	best, bestScore := data, fitness(data)
	generations := 0
	for gen := 0; gen < maxGenerations; gen++ {
		improved := false
		for _, mutate := range mutations {
			candidate := mutate(best)
			if score := fitness(candidate); score > bestScore {
				best, bestScore = candidate, score
				improved = true
			}
		}
		if !improved {
			break
		}
		generations++
	}
	return best, generations
}

// deepAnalysis adds a missing header and wraps orphaned lines that look like
// object syntax into new objects.
func deepAnalysis(data []byte) ([]byte, int) {
	fixes := 0
	if !bytes.HasPrefix(data, []byte(headerMagic)) {
		data = insertAt(data, 0, defaultHeader)
		fixes++
	}

	regions := objectRegions(data)
	next := deepObjectFloor
	for _, r := range regions {
		next = max(next, r.header.Number+1)
	}

	var b bytes.Buffer
	prev := 0
	for _, g := range gaps(coveredIntervals(data, regions), len(data)) {
		for p := g.start; p < g.end; {
			line, after := readLine(data[:g.end], p)
			trimmed := bytes.TrimSpace(line)
			if bytes.HasPrefix(trimmed, []byte("/")) || bytes.HasPrefix(trimmed, []byte("<<")) {
				b.Write(data[prev:p])
				if !precededByWhitespace(data, p) {
					b.WriteByte('\n')
				}
				fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", next, trimmed)
				next++
				fixes++
				prev = after
			}
			if after == p {
				after++
			}
			p = after
		}
	}
	if prev == 0 {
		return data, fixes
	}
	b.Write(data[prev:])
	return b.Bytes(), fixes
}
