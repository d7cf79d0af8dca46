package embedder

import (
	"bytes"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Embedding is a special format of data representation that can be easily utilized by machine
// learning models and algorithms. The embedding is an information dense representation of the
// semantic meaning of a piece of text. Each embedding is a vector of floating point numbers,
// such that the distance between two embeddings in the vector space is correlated with semantic similarity
// between two inputs in the original format.
type Embedding struct {
	Object    string            `json:"object"`
	Embedding []float64         `json:"embedding"`
	Index     int               `json:"index"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// UUID returns a name based id over the embedded text and its metadata.
// Metadata keys are sorted so the id does not depend on map order.
func (e Embedding) UUID() string {
	sb := new(bytes.Buffer)
	sb.WriteString(e.Object)
	keys := make([]string, 0, len(e.Meta))
	for k := range e.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(k + ":" + e.Meta[k])
		sb.WriteByte('\n')
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, sb.Bytes()).String()
}

// SourceRecord is one row of the catalogue: a section header, an optional
// sub-header and the text under them.
type SourceRecord struct {
	Header    string `json:"header" yaml:"header"`
	Subheader string `json:"subheader,omitempty" yaml:"subheader,omitempty"`
	Content   string `json:"content" yaml:"content"`
}

// Title is the header and sub-header as they prefix every chunk
func (r SourceRecord) Title() string {
	return strings.TrimSpace(r.Header + " " + r.Subheader)
}

// Text composes header, sub-header and content the way chunks are embedded
func (r SourceRecord) Text() string {
	return strings.TrimSpace(r.Header + " " + r.Subheader + " " + r.Content)
}

// ID is the content addressed id of the record. Identical triples share an id.
func (r SourceRecord) ID() string {
	return ChunkID(r.Header, r.Subheader, r.Content)
}

// ChunkID fingerprints (header, subheader, content) as a UUIDv5.
// Fields are separated by a unit separator so shifting text between
// fields changes the id.
func ChunkID(header, subheader, content string) string {
	name := header + "\x1f" + subheader + "\x1f" + content
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// Chunk is a token bounded fragment of a source record, header and
// sub-header included.
type Chunk struct {
	// ID is the content addressed fingerprint of the fragment
	ID string `json:"id"`
	// Text is "{header} {subheader} {content}" trimmed
	Text string `json:"text"`
	// TokenSize represents the number of tokens in Text
	TokenSize int `json:"token_size"`
	// Source is the fragment of the record this chunk was built from;
	// its Content holds only this chunk's share of the original content.
	Source SourceRecord `json:"source"`
}

// NewChunk builds the chunk of a (partial) record
func NewChunk(record SourceRecord, tokenSize int) Chunk {
	return Chunk{
		ID:        record.ID(),
		Text:      record.Text(),
		TokenSize: tokenSize,
		Source:    record,
	}
}

// Meta is the metadata stored with the chunk vector
func (c Chunk) Meta() map[string]string {
	return map[string]string{
		MetaText:      c.Text,
		MetaHeader:    c.Source.Header,
		MetaSubheader: c.Source.Subheader,
	}
}

const (
	MetaText      = "text"
	MetaHeader    = "header"
	MetaSubheader = "subheader"
)

// EmbeddedChunk represents a chunk of text along with its vector embeddings
// and associated metadata.
type EmbeddedChunk struct {
	Embedding
	// Chunk is the original chunk content that was embedded
	Chunk *Chunk `json:"chunk"`
}

// Chunker splits a source record into token bounded chunks
type Chunker interface {
	Split(record SourceRecord) ([]Chunk, error)
}

// Batches splits chunks into consecutive batches of at most size chunks.
// size <= 0 means DefaultBatchSize.
func Batches(chunks []Chunk, size int) [][]Chunk {
	if size <= 0 {
		size = DefaultBatchSize
	}
	ret := make([][]Chunk, 0, (len(chunks)+size-1)/size)
	for i := 0; i < len(chunks); i += size {
		ret = append(ret, chunks[i:min(i+size, len(chunks))])
	}
	return ret
}

// DefaultBatchSize is the number of texts sent per embedding request
const DefaultBatchSize = 10

// IDs returns chunk ids in order
func IDs(chunks []Chunk) []string {
	ret := make([]string, len(chunks))
	for i, c := range chunks {
		ret[i] = c.ID
	}
	return ret
}
