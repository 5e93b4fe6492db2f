// Package content loads course catalogs and league thresholds from YAML
// or XLSX files and upserts them into the store.
package content

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	leaguemodels "github.com/codeowl/platform/internal/league/models"
	"github.com/codeowl/platform/internal/lesson/models"
)

// Course is the authoring format shared by every loader.
type Course struct {
	Languages []LanguageDoc  `yaml:"languages"`
	Leagues   []ThresholdDoc `yaml:"leagues"`
}

type LanguageDoc struct {
	Slug  string    `yaml:"slug"`
	Name  string    `yaml:"name"`
	Units []UnitDoc `yaml:"units"`
}

type UnitDoc struct {
	Title   string      `yaml:"title"`
	Lessons []LessonDoc `yaml:"lessons"`
}

type LessonDoc struct {
	Title     string        `yaml:"title"`
	Questions []QuestionDoc `yaml:"questions"`
}

type QuestionDoc struct {
	Kind        models.QuestionKind `yaml:"kind"`
	Instruction string              `yaml:"instruction"`
	Answer      string              `yaml:"answer"`
	Hint        string              `yaml:"hint"`
	XPReward    int                 `yaml:"xp_reward"`

	models.QuestionPayload `yaml:",inline"`
}

type ThresholdDoc struct {
	League               leaguemodels.Tier `yaml:"league"`
	PromotionXPThreshold *int              `yaml:"promotion_xp_threshold"`
	DemotionXPThreshold  *int              `yaml:"demotion_xp_threshold"`
}

// Validate checks the whole document and reports every problem found,
// each prefixed with its location.
func (c *Course) Validate() error {
	var problems []string
	add := func(where, format string, args ...interface{}) {
		problems = append(problems, where+": "+fmt.Sprintf(format, args...))
	}

	slugs := make(map[string]bool)
	for li, lang := range c.Languages {
		where := fmt.Sprintf("languages[%d]", li)
		if lang.Slug == "" {
			add(where, "slug is required")
		} else if slugs[lang.Slug] {
			add(where, "duplicate slug %q", lang.Slug)
		}
		slugs[lang.Slug] = true
		if lang.Name == "" {
			add(where, "name is required")
		}

		for ui, unit := range lang.Units {
			uwhere := fmt.Sprintf("%s.units[%d]", where, ui)
			if unit.Title == "" {
				add(uwhere, "title is required")
			}
			for mi, lesson := range unit.Lessons {
				mwhere := fmt.Sprintf("%s.lessons[%d]", uwhere, mi)
				if lesson.Title == "" {
					add(mwhere, "title is required")
				}
				for qi, q := range lesson.Questions {
					if err := q.validate(); err != nil {
						add(fmt.Sprintf("%s.questions[%d]", mwhere, qi), "%v", err)
					}
				}
			}
		}
	}

	seen := make(map[leaguemodels.Tier]bool)
	for i, th := range c.Leagues {
		where := fmt.Sprintf("leagues[%d]", i)
		if !th.League.Valid() {
			add(where, "unknown league %q", th.League)
			continue
		}
		if seen[th.League] {
			add(where, "duplicate league %q", th.League)
		}
		seen[th.League] = true
		if th.PromotionXPThreshold != nil && th.DemotionXPThreshold != nil &&
			*th.PromotionXPThreshold <= *th.DemotionXPThreshold {
			add(where, "promotion threshold must be greater than demotion threshold")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid course:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

func (q *QuestionDoc) validate() error {
	if q.XPReward < 0 {
		return fmt.Errorf("xp_reward must not be negative")
	}

	switch q.Kind {
	case models.KindFillBlank:
		if q.Answer == "" {
			return fmt.Errorf("fill-blank needs an answer")
		}
		if q.CodeTemplate != "" && !strings.Contains(q.CodeTemplate, models.BlankMarker) {
			return fmt.Errorf("code_template has no %s blank", models.BlankMarker)
		}
		if len(q.Options) > 0 && !slices.Contains(q.Options, q.Answer) {
			return fmt.Errorf("answer %q is not one of the options", q.Answer)
		}
	case models.KindMultipleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("multiple-choice needs at least two options")
		}
		idx, err := strconv.Atoi(strings.TrimSpace(q.Answer))
		if err != nil || idx < 0 || idx >= len(q.Options) {
			return fmt.Errorf("answer must be an option index between 0 and %d", len(q.Options)-1)
		}
	case models.KindDragOrder:
		if len(q.Blocks) == 0 {
			return fmt.Errorf("drag-order needs blocks")
		}
		ids := make([]string, len(q.Blocks))
		for i, b := range q.Blocks {
			ids[i] = b.ID
		}
		want := slices.Clone(q.CorrectOrder)
		slices.Sort(ids)
		slices.Sort(want)
		if !slices.Equal(ids, want) {
			return fmt.Errorf("correct_order must list every block id exactly once")
		}
	case models.KindCodeRunner:
		if strings.TrimSpace(q.ExpectedOutput) == "" {
			return fmt.Errorf("code-runner needs expected_output")
		}
	default:
		return fmt.Errorf("unknown kind %q", q.Kind)
	}
	return nil
}

func (q *QuestionDoc) model(lessonID uint, position int) models.Question {
	xp := q.XPReward
	if xp == 0 {
		xp = models.DefaultXPReward
	}
	return models.Question{
		LessonID:    lessonID,
		Kind:        q.Kind,
		Instruction: q.Instruction,
		Payload:     q.QuestionPayload,
		Answer:      q.Answer,
		Hint:        q.Hint,
		XPReward:    xp,
		Position:    position,
	}
}
