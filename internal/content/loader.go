package content

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	leaguemodels "github.com/codeowl/platform/internal/league/models"
	"github.com/codeowl/platform/internal/lesson/models"
)

const (
	QuestionsSheet = "Questions"
	LeaguesSheet   = "Leagues"
)

// LoadFile reads a course from a .yaml/.yml or .xlsx file.
func LoadFile(path string) (*Course, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open course file: %w", err)
		}
		defer f.Close()
		return ParseYAML(f)
	case ".xlsx":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open course workbook: %w", err)
		}
		defer f.Close()
		return parseWorkbook(f)
	default:
		return nil, fmt.Errorf("unsupported course file %q: want .yaml or .xlsx", path)
	}
}

// ParseYAML decodes a course document. Unknown keys are rejected.
func ParseYAML(r io.Reader) (*Course, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Course
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode course yaml: %w", err)
	}
	return &c, nil
}

// ParseXLSX reads a workbook with a Questions sheet and an optional
// Leagues sheet. Each Questions row is one question; languages, units and
// lessons are grouped by name in order of first appearance.
func ParseXLSX(r io.Reader) (*Course, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open course workbook: %w", err)
	}
	defer f.Close()
	return parseWorkbook(f)
}

func parseWorkbook(f *excelize.File) (*Course, error) {
	rows, err := f.GetRows(QuestionsSheet)
	if err != nil {
		return nil, fmt.Errorf("read %s sheet: %w", QuestionsSheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s sheet is empty", QuestionsSheet)
	}

	header := indexHeader(rows[0])
	for _, col := range []string{"language_slug", "unit", "lesson", "kind"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("%s sheet is missing the %q column", QuestionsSheet, col)
		}
	}

	c := &Course{}
	for i, row := range rows[1:] {
		get := func(col string) string {
			idx, ok := header[col]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if get("language_slug") == "" && get("kind") == "" {
			continue
		}

		q, err := questionFromRow(get)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", QuestionsSheet, i+2, err)
		}

		lang := c.language(get("language_slug"), get("language_name"))
		unit := lang.unit(get("unit"))
		lesson := unit.lesson(get("lesson"))
		lesson.Questions = append(lesson.Questions, q)
	}

	if idx, _ := f.GetSheetIndex(LeaguesSheet); idx >= 0 {
		leagueRows, err := f.GetRows(LeaguesSheet)
		if err != nil {
			return nil, fmt.Errorf("read %s sheet: %w", LeaguesSheet, err)
		}
		if c.Leagues, err = thresholdsFromRows(leagueRows); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func indexHeader(row []string) map[string]int {
	out := make(map[string]int, len(row))
	for i, name := range row {
		out[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return out
}

func questionFromRow(get func(string) string) (QuestionDoc, error) {
	q := QuestionDoc{
		Kind:        models.QuestionKind(get("kind")),
		Instruction: get("instruction"),
		Answer:      get("answer"),
		Hint:        get("hint"),
	}
	if raw := get("xp_reward"); raw != "" {
		xp, err := strconv.Atoi(raw)
		if err != nil {
			return q, fmt.Errorf("xp_reward %q is not a number", raw)
		}
		q.XPReward = xp
	}

	q.CodeTemplate = get("code_template")
	q.InitialCode = get("initial_code")
	q.ExpectedOutput = get("expected_output")
	q.Options = splitList(get("options"), "|")
	q.CorrectOrder = splitList(get("correct_order"), ",")

	// blocks are "id=code" pairs separated by newlines
	for _, line := range splitList(get("blocks"), "\n") {
		id, code, ok := strings.Cut(line, "=")
		if !ok {
			return q, fmt.Errorf("block %q is not id=code", line)
		}
		q.Blocks = append(q.Blocks, models.CodeBlock{ID: strings.TrimSpace(id), Code: code})
	}
	return q, nil
}

func thresholdsFromRows(rows [][]string) ([]ThresholdDoc, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	header := indexHeader(rows[0])
	cell := func(row []string, col string) string {
		idx, ok := header[col]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var out []ThresholdDoc
	for i, row := range rows[1:] {
		league := cell(row, "league")
		if league == "" {
			continue
		}
		th := ThresholdDoc{League: leaguemodels.Tier(strings.ToLower(league))}
		for col, dst := range map[string]**int{
			"promotion_xp_threshold": &th.PromotionXPThreshold,
			"demotion_xp_threshold":  &th.DemotionXPThreshold,
		} {
			raw := cell(row, col)
			if raw == "" {
				continue
			}
			v, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %s %q is not a number", LeaguesSheet, i+2, col, raw)
			}
			*dst = &v
		}
		out = append(out, th)
	}
	return out, nil
}

func splitList(raw, sep string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Course) language(slug, name string) *LanguageDoc {
	for i := range c.Languages {
		if c.Languages[i].Slug == slug {
			return &c.Languages[i]
		}
	}
	if name == "" {
		name = slug
	}
	c.Languages = append(c.Languages, LanguageDoc{Slug: slug, Name: name})
	return &c.Languages[len(c.Languages)-1]
}

func (l *LanguageDoc) unit(title string) *UnitDoc {
	for i := range l.Units {
		if l.Units[i].Title == title {
			return &l.Units[i]
		}
	}
	l.Units = append(l.Units, UnitDoc{Title: title})
	return &l.Units[len(l.Units)-1]
}

func (u *UnitDoc) lesson(title string) *LessonDoc {
	for i := range u.Lessons {
		if u.Lessons[i].Title == title {
			return &u.Lessons[i]
		}
	}
	u.Lessons = append(u.Lessons, LessonDoc{Title: title})
	return &u.Lessons[len(u.Lessons)-1]
}

// WriteTemplate renders an empty workbook with the expected headers.
func WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", QuestionsSheet); err != nil {
		return err
	}
	questionCols := []interface{}{
		"language_slug", "language_name", "unit", "lesson", "kind", "instruction",
		"code_template", "options", "blocks", "correct_order", "initial_code",
		"expected_output", "answer", "hint", "xp_reward",
	}
	if err := f.SetSheetRow(QuestionsSheet, "A1", &questionCols); err != nil {
		return err
	}

	if _, err := f.NewSheet(LeaguesSheet); err != nil {
		return err
	}
	leagueCols := []interface{}{"league", "promotion_xp_threshold", "demotion_xp_threshold"}
	if err := f.SetSheetRow(LeaguesSheet, "A1", &leagueCols); err != nil {
		return err
	}

	return f.Write(w)
}
