// Package memoryindex implements the Memory Index: a lightweight,
// per-session recall mechanism that scores past question/answer pairs
// by keyword overlap with the current query, decayed by how long ago
// they happened. It intentionally has no embedding model — recall
// quality is "good enough to surface last week's answer", not
// semantic search.
package memoryindex

import (
	"bufio"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nugget/miniagent/internal/agenterr"
)

// defaultHalfLifeDays controls how quickly older entries lose recall weight.
// spec.md calls for a decay "on the order of days"; with the exp(-Δdays/H)
// weighting, three days means an entry from a week ago contributes roughly
// a tenth of the weight of one from today, all else equal.
const defaultHalfLifeDays = 3.0

var (
	nonAlnum  = regexp.MustCompile(`[^a-z0-9\s]+`)
	stopwords = buildStopwords()
)

func buildStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "is", "are", "was", "were", "be", "been", "being",
		"and", "or", "but", "if", "then", "than", "so", "of", "to", "in",
		"on", "at", "for", "with", "about", "as", "by", "from", "into",
		"this", "that", "these", "those", "it", "its", "i", "you", "he",
		"she", "we", "they", "my", "your", "his", "her", "our", "their",
		"do", "does", "did", "have", "has", "had", "can", "could", "will",
		"would", "should", "what", "when", "where", "which", "who", "how",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// tokenize lower-cases, strips punctuation, and drops stopwords.
func tokenize(s string) []string {
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, " ")
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Entry is one recorded question/answer pair.
type Entry struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Keywords  []string  `json:"keywords"`
	CreatedAt time.Time `json:"created_at"`
}

// Index is the Memory Index, backed by one append-only JSONL file per
// session key under dataDir/memory/.
type Index struct {
	dataDir    string
	halfLife   float64
	writeLocks sync.Map // sessionKey -> *sync.Mutex
}

// Option configures an Index.
type Option func(*Index)

// WithHalfLifeDays overrides the recency-decay half life.
func WithHalfLifeDays(days float64) Option {
	return func(i *Index) { i.halfLife = days }
}

// New creates an Index rooted at dataDir.
func New(dataDir string, opts ...Option) *Index {
	idx := &Index{dataDir: dataDir, halfLife: defaultHalfLifeDays}
	for _, o := range opts {
		o(idx)
	}
	return idx
}

func (idx *Index) path(sessionKey string) string {
	return filepath.Join(idx.dataDir, "memory", sessionKey+".jsonl")
}

func (idx *Index) lockFor(sessionKey string) *sync.Mutex {
	v, _ := idx.writeLocks.LoadOrStore(sessionKey, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Record appends a new question/answer pair to a session's memory.
// Writes for a given session are serialised by a single-writer lock;
// concurrent readers are unaffected.
func (idx *Index) Record(sessionKey, question, answerSummary string) error {
	lock := idx.lockFor(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Join(idx.dataDir, "memory")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return agenterr.IOError("create memory dir", err)
	}

	entry := Entry{
		Question:  question,
		Answer:    answerSummary,
		Keywords:  tokenize(question + " " + answerSummary),
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return agenterr.IOError("marshal memory entry", err)
	}

	f, err := os.OpenFile(idx.path(sessionKey), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return agenterr.IOError("open memory file", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return agenterr.IOError("append memory entry", err)
	}
	return f.Sync()
}

// scored pairs an Entry with its computed relevance score.
type scored struct {
	Entry
	score float64
}

// Recall returns the top-k entries for a session ranked by
// overlap(queryTokens, entry.keywords) * exp(-Δdays / halfLife), ties
// broken by recency. Reads take no lock — they operate on a snapshot
// read of the file as it stands.
func (idx *Index) Recall(sessionKey, query string, k int) ([]Entry, error) {
	f, err := os.Open(idx.path(sessionKey))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, agenterr.IOError("open memory file", err)
	}
	defer f.Close()

	queryTokens := tokenize(query)
	qset := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		qset[t] = struct{}{}
	}

	now := time.Now()
	var candidates []scored

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // tolerate a partially-written tail line
		}
		overlap := 0
		for _, kw := range e.Keywords {
			if _, ok := qset[kw]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		deltaDays := now.Sub(e.CreatedAt).Hours() / 24
		if deltaDays < 0 {
			deltaDays = 0
		}
		score := float64(overlap) * math.Exp(-deltaDays/idx.halfLife)
		candidates = append(candidates, scored{Entry: e, score: score})
	}
	if err := scanner.Err(); err != nil {
		return nil, agenterr.IOError("scan memory file", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]Entry, k)
	for i := 0; i < k; i++ {
		out[i] = candidates[i].Entry
	}
	return out, nil
}
