package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/kailas-cloud/nerprompt/internal/domain"
)

// Output line fields added to every processed record.
const (
	FieldInstruction = "enhanced_instruction"
	FieldMetadata    = "retrieval_metadata"
	outputPrefix     = "enhanced_"
	maxLineBytes     = 16 << 20
)

// FileStats summarizes one processed JSONL file.
type FileStats struct {
	Input     string          `json:"input"`
	Output    string          `json:"output"`
	Language  domain.Language `json:"language"`
	Total     int             `json:"total_entries"`
	Succeeded int             `json:"successful_entries"`
	Failed    int             `json:"failed_entries"`
}

// FilesSummary aggregates ProcessFiles over all matched files.
type FilesSummary struct {
	Files     []FileStats `json:"files"`
	Total     int         `json:"total_entries"`
	Succeeded int         `json:"successful_entries"`
	Failed    int         `json:"failed_entries"`
}

type metadata struct {
	Language  domain.Language                          `json:"language"`
	Entities  map[domain.EntityType][]domain.EntityHit `json:"retrieved_entities"`
	Sentences []domain.SentenceHit                     `json:"retrieved_sentences"`
	Duration  float64                                  `json:"processing_time"`
}

// ProcessFiles reads every JSONL file matching pattern, builds an instruction
// for the inputField of each line and writes the line, with the instruction
// added, to outDir/enhanced_<name>. Lines that fail are counted and dropped.
func (s *Service) ProcessFiles(ctx context.Context, pattern, inputField, outDir string) (FilesSummary, error) {
	if inputField == "" {
		inputField = DefaultInputField
	}
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return FilesSummary{}, fmt.Errorf("%w: glob %q: %w", domain.ErrInvalidInput, pattern, err)
	}
	slices.Sort(matches)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return FilesSummary{}, fmt.Errorf("create output dir: %w", err)
	}

	var sum FilesSummary
	for _, in := range matches {
		name := filepath.Base(in)
		if strings.HasPrefix(name, outputPrefix) {
			continue // own output from an earlier run
		}
		st, err := s.processFile(ctx, in, filepath.Join(outDir, outputPrefix+name), inputField)
		if err != nil {
			return sum, err
		}
		sum.Files = append(sum.Files, st)
		sum.Total += st.Total
		sum.Succeeded += st.Succeeded
		sum.Failed += st.Failed
	}

	s.logger.Info("JSONL files processed",
		zap.Int("files", len(sum.Files)),
		zap.Int("total", sum.Total),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

func (s *Service) processFile(ctx context.Context, in, out, inputField string) (st FileStats, err error) {
	st = FileStats{Input: in, Output: out, Language: LanguageFromFilename(filepath.Base(in), s.cfg.DefaultLanguage)}

	src, err := os.Open(in)
	if err != nil {
		return st, fmt.Errorf("open %s: %w", in, err)
	}
	defer src.Close()

	dst, err := os.Create(out)
	if err != nil {
		return st, fmt.Errorf("create %s: %w", out, err)
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", out, cerr)
		}
	}()

	w := bufio.NewWriter(dst)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return st, fmt.Errorf("process %s: %w", in, err)
		}
		st.Total++

		rec, err := s.enhance(ctx, raw, inputField, st.Language)
		if err != nil {
			st.Failed++
			s.logger.Warn("Skipping JSONL line",
				zap.String("file", in),
				zap.Int("line", line),
				zap.Error(err),
			)
			continue
		}
		if err := enc.Encode(rec); err != nil {
			return st, fmt.Errorf("write %s: %w", out, err)
		}
		st.Succeeded++
	}
	if err := sc.Err(); err != nil {
		return st, fmt.Errorf("read %s: %w", in, err)
	}
	if err := w.Flush(); err != nil {
		return st, fmt.Errorf("write %s: %w", out, err)
	}

	s.logger.Info("JSONL file processed",
		zap.String("file", in),
		zap.String("language", string(st.Language)),
		zap.Int("succeeded", st.Succeeded),
		zap.Int("failed", st.Failed),
	)
	return st, nil
}

func (s *Service) enhance(ctx context.Context, raw, inputField string, lang domain.Language) (map[string]any, error) {
	var rec map[string]any
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("%w: decode line: %w", domain.ErrInvalidInput, err)
	}
	text, ok := rec[inputField].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing string field %q", domain.ErrInvalidInput, inputField)
	}

	out, err := s.builder.Build(ctx, domain.Query{Text: text, Language: lang}, s.cfg.IncludeMetadata)
	if err != nil {
		return nil, err
	}
	rec[FieldInstruction] = out.Instruction
	if s.cfg.IncludeMetadata {
		rec[FieldMetadata] = metadata{
			Language:  lang,
			Entities:  out.Entities,
			Sentences: out.Sentences,
			Duration:  out.Statistics.Duration.Seconds(),
		}
	}
	return rec, nil
}

// LanguageFromFilename finds a "_xx." or "_xx_" language marker in name.
func LanguageFromFilename(name string, fallback domain.Language) domain.Language {
	for _, l := range domain.AllLanguages() {
		if strings.Contains(name, "_"+string(l)+".") || strings.Contains(name, "_"+string(l)+"_") {
			return l
		}
	}
	return fallback
}
