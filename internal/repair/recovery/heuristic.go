package recovery

import (
	"fmt"
	"regexp"

	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/infra/cos"
)

var keywordTypos = map[string]string{
	"obje":     "obj",
	"endobje":  "endobj",
	"endbj":    "endobj",
	"stram":    "stream",
	"streem":   "stream",
	"endstram": "endstream",
	"endstrem": "endstream",
	"traler":   "trailer",
	"trailor":  "trailer",
	"xrf":      "xref",
	"startxrf": "startxref",
}

var (
	keywordTypoRe = regexp.MustCompile(`\b(obje|endobje|endbj|stram|streem|endstram|endstrem|traler|trailor|xrf|startxrf)\b`)
	objDictRe     = regexp.MustCompile(`\bobj<<`)
	dictKeywordRe = regexp.MustCompile(`>>(stream|endobj)\b`)
)

// HeuristicRecovery fixes misspelled keywords, missing whitespace around
// delimiters, unclosed strings and unbalanced delimiters.
type HeuristicRecovery struct{}

func NewHeuristicRecovery() *HeuristicRecovery { return &HeuristicRecovery{} }

func (s *HeuristicRecovery) Name() string    { return nameHeuristic }
func (s *HeuristicRecovery) Priority() uint8 { return 30 }

func (s *HeuristicRecovery) CanHandle(kind domain.ErrorKind) bool {
	return kind == domain.ErrorKindParse || kind == domain.ErrorKindStructural
}

func (s *HeuristicRecovery) Apply(c *Context) (StrategyResult, error) {
	typos := 0
	data := cos.MapText(c.Current, func(text []byte) []byte {
		typos += len(keywordTypoRe.FindAllIndex(text, -1))
		text = keywordTypoRe.ReplaceAllFunc(text, func(m []byte) []byte {
			return []byte(keywordTypos[string(m)])
		})
		typos += len(objDictRe.FindAllIndex(text, -1))
		text = objDictRe.ReplaceAll(text, []byte("obj <<"))
		typos += len(dictKeywordRe.FindAllIndex(text, -1))
		return dictKeywordRe.ReplaceAll(text, []byte(">>\n$1"))
	})

	data, unclosed := closeStrings(data)
	data, closers := balanceObjects(data)

	fixes := typos + unclosed + closers
	return outcome(c.Current, data, ActionHeuristicPatch, fixes,
		fmt.Sprintf("fixed %d keywords, closed %d strings, balanced %d delimiters", typos, unclosed, closers)), nil
}

// closeStrings terminates literal strings still open when an object's
// syntax ends.
func closeStrings(data []byte) ([]byte, int) {
	var ins []insertion
	for _, r := range objectRegions(data) {
		depth := 0
		for i := r.header.End; i < r.textEnd; i++ {
			switch data[i] {
			case '\\':
				if depth > 0 {
					i++
				}
			case '(':
				depth++
			case ')':
				if depth > 0 {
					depth--
				}
			case '%':
				if depth == 0 {
					i = skipComment(data, i, r.textEnd)
				}
			}
		}
		if depth > 0 {
			text := ""
			for k := 0; k < depth; k++ {
				text += ")"
			}
			ins = append(ins, insertion{at: r.textEnd, text: text + "\n"})
		}
	}
	return applyInsertions(data, ins), len(ins)
}

var (
	fuzzyTokenRe  = regexp.MustCompile(`^/?[A-Za-z]+$`)
	fuzzyKeywords = []string{"obj", "endobj", "stream", "endstream", "xref", "trailer", "startxref"}
	fuzzyTypes    = []string{"Catalog", "Pages", "Page", "Font"}
)

// FuzzyMatchingRecovery replaces tokens that are one edit away from a known
// keyword or structural name. Names are only corrected where a structural
// name belongs: the /Type key and the value that follows it.
type FuzzyMatchingRecovery struct{}

func NewFuzzyMatchingRecovery() *FuzzyMatchingRecovery { return &FuzzyMatchingRecovery{} }

func (s *FuzzyMatchingRecovery) Name() string    { return nameFuzzy }
func (s *FuzzyMatchingRecovery) Priority() uint8 { return 20 }

func (s *FuzzyMatchingRecovery) CanHandle(kind domain.ErrorKind) bool {
	return kind == domain.ErrorKindParse
}

func (s *FuzzyMatchingRecovery) Apply(c *Context) (StrategyResult, error) {
	matches := 0
	prev := ""
	data := cos.MapText(c.Current, func(text []byte) []byte {
		out := make([]byte, 0, len(text))
		i := 0
		for i < len(text) {
			if cos.IsWhitespace(text[i]) {
				out = append(out, text[i])
				i++
				continue
			}
			j := i
			for j < len(text) && !cos.IsWhitespace(text[j]) {
				j++
			}
			token := string(text[i:j])
			if repl, ok := fuzzyReplacement(prev, token); ok {
				out = append(out, repl...)
				matches++
				token = repl
			} else {
				out = append(out, token...)
			}
			prev = token
			i = j
		}
		return out
	})
	return outcome(c.Current, data, ActionFuzzyMatch, matches,
		fmt.Sprintf("replaced %d near-miss tokens", matches)), nil
}

func fuzzyReplacement(prev, token string) (string, bool) {
	if !fuzzyTokenRe.MatchString(token) {
		return "", false
	}
	prefix, word, dict := "", token, fuzzyKeywords
	if token[0] == '/' {
		prefix, word = "/", token[1:]
		switch {
		case prev == "/Type":
			dict = fuzzyTypes
		case levenshtein(word, "Type") <= 1:
			dict = []string{"Type"}
		default:
			return "", false
		}
	}
	if len(word) < 3 {
		return "", false
	}
	for _, candidate := range dict {
		if candidate == word {
			return "", false
		}
	}
	for _, candidate := range dict {
		if levenshtein(word, candidate) <= 1 {
			return prefix + candidate, true
		}
	}
	return "", false
}

// levenshtein returns the edit distance between a and b.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
