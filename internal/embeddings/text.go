package embeddings

import (
	"strings"

	"github.com/Benny93/rfgraph/internal/model"
	"github.com/Benny93/rfgraph/internal/storage"
)

// Document is one artifact ready for embedding: the text to embed plus the
// metadata stored next to its vector.
type Document struct {
	ID       string
	Text     string
	Metadata storage.Metadata
}

// Record identity prefixes keep keywords, test cases and file docs with the
// same name apart.
const (
	keywordIDPrefix  = "kw:"
	testCaseIDPrefix = "tc:"
	fileDocIDPrefix  = "file:"
)

// KeywordID returns the vector record identity of a keyword.
func KeywordID(fqn string) string { return keywordIDPrefix + fqn }

// TestCaseID returns the vector record identity of a test case.
func TestCaseID(fqn string) string { return testCaseIDPrefix + fqn }

// FileDocID returns the vector record identity of a file's documentation.
func FileDocID(path string) string { return fileDocIDPrefix + path }

// BuildEmbeddingText builds the text embedded for an artifact: the
// documentation first, then the body, then the name unless the
// documentation already mentions it. An artifact with none of these embeds
// its bare name.
func BuildEmbeddingText(doc, body, name string) string {
	var parts []string
	if doc != "" {
		parts = append(parts, doc)
	}
	if body != "" {
		parts = append(parts, body)
	}
	if name != "" && !strings.Contains(doc, name) {
		parts = append(parts, name)
	}
	if len(parts) == 0 {
		return name
	}
	return strings.Join(parts, "\n")
}

// FileDocuments returns the documents of every keyword and test case in rf,
// plus the file-level documentation when present.
func FileDocuments(rf *model.ResourceFile) []Document {
	docs := make([]Document, 0, len(rf.Keywords)+len(rf.TestCases)+1)

	for _, kw := range rf.Keywords {
		docs = append(docs, Document{
			ID:   KeywordID(kw.FQN),
			Text: BuildEmbeddingText(kw.Documentation, kw.BodyText, kw.Name),
			Metadata: storage.Metadata{
				Type:     storage.TypeKeyword,
				FQN:      kw.FQN,
				Name:     kw.Name,
				Source:   rf.Path,
				Role:     rf.Role,
				Platform: rf.Platform,
				Tags:     kw.Tags,
			},
		})
	}

	for _, tc := range rf.TestCases {
		docs = append(docs, Document{
			ID:   TestCaseID(tc.FQN),
			Text: BuildEmbeddingText(tc.Documentation, tc.BodyText, tc.Name),
			Metadata: storage.Metadata{
				Type:     storage.TypeTestCase,
				FQN:      tc.FQN,
				Name:     tc.Name,
				Source:   rf.Path,
				Role:     rf.Role,
				Platform: rf.Platform,
				Tags:     tc.Tags,
			},
		})
	}

	if rf.Documentation != "" {
		docs = append(docs, Document{
			ID:   FileDocID(rf.Path),
			Text: rf.Documentation,
			Metadata: storage.Metadata{
				Type:     storage.TypeFileDoc,
				FQN:      rf.Path,
				Name:     rf.Stem(),
				Source:   rf.Path,
				Role:     rf.Role,
				Platform: rf.Platform,
			},
		})
	}

	return docs
}

// Records embeds docs with e, fitting it on their texts first, and returns
// storage records in input order.
func Records(e Embedder, docs []Document) []storage.Record {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	vectors := EmbedAll(e, texts)

	records := make([]storage.Record, len(docs))
	for i, d := range docs {
		records[i] = storage.Record{
			ID:       d.ID,
			Vector:   vectors[i],
			Document: d.Text,
			Metadata: d.Metadata,
		}
	}
	return records
}
