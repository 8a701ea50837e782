package inbox

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dailyos/dailyos/internal/aicompletion"
	"github.com/dailyos/dailyos/internal/fileio"
	"gopkg.in/yaml.v3"
)

// Classification is the outcome of routing one inbox file (spec §4.5:
// "each file either routed to an entity directory, archived with
// metadata, or left for manual review").
type Classification string

const (
	ClassRouted          Classification = "routed"
	ClassNeedsEnrichment Classification = "needs_enrichment"
	ClassArchived        Classification = "archived"
)

// Disposition is the quick- or AI-classifier's verdict for one file.
type Disposition struct {
	Classification Classification
	AccountName    string
	Kind           string
	Summary        string
}

// accountHintPattern matches "Acme Corp - notes.pdf"-style filenames
// where the account name precedes a space-padded separator.
var accountHintPattern = regexp.MustCompile(`^([A-Za-z0-9 &]+?)\s+[-_]\s+`)

var archiveFilenameHints = []string{"newsletter", "receipt", "invoice", "unsubscribe"}

// QuickClassify applies filename/content heuristics with no AI call
// (spec §4.5 "Quick classification (no AI)"). A confident match routes
// or archives the file outright; anything ambiguous is left
// NeedsEnrichment for the AI pass.
func QuickClassify(filename string, extracted Extracted) Disposition {
	lower := strings.ToLower(filename)
	for _, hint := range archiveFilenameHints {
		if strings.Contains(lower, hint) {
			return Disposition{Classification: ClassArchived, Kind: hint}
		}
	}

	if m := accountHintPattern.FindStringSubmatch(filename); m != nil {
		account := strings.TrimSpace(m[1])
		if account != "" && len(strings.Fields(account)) <= 4 {
			return Disposition{
				Classification: ClassRouted,
				AccountName:    account,
				Kind:           "reference",
			}
		}
	}

	if extracted.Format == FormatUnsupported {
		return Disposition{Classification: ClassArchived, Kind: "unsupported"}
	}

	return Disposition{Classification: ClassNeedsEnrichment}
}

// enrichmentPrompt is the tier-extraction prompt the AI pass runs
// against truncated inbox text (spec §4.5 "AI enrichment").
func enrichmentPrompt(text string) string {
	return fmt.Sprintf("Classify this document for filing. Respond with a short account name "+
		"if it clearly belongs to one customer account, a one-line summary, and a kind "+
		"(e.g. contract, notes, proposal).\n\n%s", text)
}

type enrichmentResult struct {
	AccountName string `json:"account_name"`
	Kind        string `json:"kind"`
	Summary     string `json:"summary"`
}

// Enrich runs the tier-extraction AI pass for a file the quick
// classifier couldn't place, re-deriving a Disposition from the
// response (spec §4.5: "response selects a classification + optional
// account; the router re-runs with the enriched classification").
func Enrich(ctx context.Context, completer aicompletion.Completer, extracted Extracted) (Disposition, error) {
	var result enrichmentResult
	err := aicompletion.CompleteJSON(ctx, completer, aicompletion.Request{
		Tier:   aicompletion.TierExtraction,
		Prompt: enrichmentPrompt(extracted.Text),
	}, &result)
	if err != nil {
		return Disposition{}, fmt.Errorf("enrich: %w", err)
	}

	if result.AccountName != "" {
		return Disposition{
			Classification: ClassRouted,
			AccountName:    result.AccountName,
			Kind:           result.Kind,
			Summary:        result.Summary,
		}, nil
	}
	return Disposition{Classification: ClassArchived, Kind: result.Kind, Summary: result.Summary}, nil
}

// sidecarFrontmatter is the YAML frontmatter written into the
// companion .md file beside a routed or archived file (spec §4.5:
// "a companion .md file with YAML frontmatter (source, format,
// extracted timestamp, classification, optional account + summary)").
type sidecarFrontmatter struct {
	Source      string    `yaml:"source"`
	Format      Format    `yaml:"format"`
	ExtractedAt time.Time `yaml:"extracted_at"`
	Classification Classification `yaml:"classification"`
	Account     string    `yaml:"account,omitempty"`
	Summary     string    `yaml:"summary,omitempty"`
}

// writeSidecar writes the frontmatter-only companion file for path at
// dir/name.md.
func writeSidecar(dir, baseName string, fm sidecarFrontmatter) error {
	data, err := yaml.Marshal(fm)
	if err != nil {
		return fmt.Errorf("marshal sidecar frontmatter: %w", err)
	}
	body := "---\n" + string(data) + "---\n"
	return fileio.WriteFileAtomic(filepath.Join(dir, baseName+".md"), []byte(body))
}

// Route moves a routed or archived file to its destination directory
// and writes its sidecar; NeedsEnrichment files are left in place for
// the caller to hand to Enrich.
func Route(ws *fileio.Workspace, srcPath string, extracted Extracted, d Disposition) error {
	base := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	fm := sidecarFrontmatter{
		Source:         filepath.Base(srcPath),
		Format:         extracted.Format,
		ExtractedAt:    time.Now().UTC(),
		Classification: d.Classification,
		Account:        d.AccountName,
		Summary:        d.Summary,
	}

	var destDir string
	switch d.Classification {
	case ClassRouted:
		destDir = ws.AccountDir(d.AccountName, "", "")
	case ClassArchived:
		destDir = filepath.Join(ws.ArchiveDir(time.Now().UTC().Format("2006-01-02")), "inbox")
	default:
		return fmt.Errorf("route: unexpected classification %q", d.Classification)
	}

	destPath := filepath.Join(destDir, filepath.Base(srcPath))
	if err := fileio.MoveFile(srcPath, destPath); err != nil {
		return fmt.Errorf("route: move %s: %w", srcPath, err)
	}
	if err := writeSidecar(destDir, base, fm); err != nil {
		return fmt.Errorf("route: sidecar %s: %w", srcPath, err)
	}
	return nil
}
