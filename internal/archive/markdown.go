// Package archive exports completed interviews as markdown and mirrors them
// to Google Drive.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sjawhar/interview-ai/internal/storage"
	"github.com/sjawhar/interview-ai/internal/suggest"
)

// Document is everything written for one interview.
type Document struct {
	Session   storage.Session
	Questions []storage.Question
	History   []storage.Exchange
	Summary   suggest.Summary
}

type Exporter struct {
	dir string
	mu  sync.Mutex
}

func NewExporter(dir string) *Exporter {
	if dir == "" {
		dir = filepath.Join("data", "transcripts")
	}
	return &Exporter{dir: dir}
}

// Path returns where the document for sessionID is written.
func (e *Exporter) Path(sessionID string) string {
	return filepath.Join(e.dir, sessionID+".md")
}

// Export writes the document, replacing any earlier export of the session.
func (e *Exporter) Export(doc Document) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", e.dir, err)
	}

	path := e.Path(doc.Session.ID)
	if err := os.WriteFile(path, []byte(Render(doc)), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func Render(doc Document) string {
	var b strings.Builder
	sess := doc.Session

	title := sess.Title
	if title == "" {
		title = "Interview " + sess.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- Session: `%s`\n", sess.ID)
	if sess.DifficultyLevel != "" {
		fmt.Fprintf(&b, "- Difficulty: %s\n", sess.DifficultyLevel)
	}
	if sess.StartedAt != nil {
		fmt.Fprintf(&b, "- Started: %s\n", sess.StartedAt.Format(time.RFC3339))
	}
	if sess.CompletedAt != nil {
		fmt.Fprintf(&b, "- Completed: %s\n", sess.CompletedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "- Overall score: %d/100\n", doc.Summary.OverallScore)

	if len(doc.Questions) > 0 {
		b.WriteString("\n## Questions\n\n")
		for i, q := range doc.Questions {
			fmt.Fprintf(&b, "%d. %s _(%s, %s)_\n", i+1, q.Text, q.Type, q.Difficulty)
		}
	}

	if len(doc.History) > 0 {
		b.WriteString("\n## Transcript\n")
		for _, ex := range doc.History {
			question := ex.Question
			if question == "" {
				question = fmt.Sprintf("Question %d", ex.QuestionID)
			}
			fmt.Fprintf(&b, "\n**Q:** %s\n\n", question)
			fmt.Fprintf(&b, "**A:** %s\n", ex.Response)
			if ex.Score != nil {
				fmt.Fprintf(&b, "\n_Score: %.0f_\n", *ex.Score)
			}
		}
	}

	s := doc.Summary
	b.WriteString("\n## Feedback\n\n")
	if s.DetailedFeedback != "" {
		fmt.Fprintf(&b, "%s\n", s.DetailedFeedback)
	}
	writeList(&b, "Strengths", s.Strengths)
	writeList(&b, "Areas for improvement", s.AreasForImprovement)
	writeList(&b, "Recommendations", s.Recommendations)
	writeList(&b, "Strong skills", s.SkillAssessment.StrongSkills)
	writeList(&b, "Developing skills", s.SkillAssessment.DevelopingSkills)
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n### %s\n\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}
