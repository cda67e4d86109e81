package library

import (
	"time"

	"github.com/MimeLyc/skill-translator/internal/service"
)

// Skill is a folder holding a SKILL.md file.
type Skill struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Description string    `json:"description"`
	WhenToUse   string    `json:"when_to_use,omitempty"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// Subject exposes the skill's translatable fields to the pipeline. Its id is
// the folder path.
func (s Skill) Subject() service.Subject {
	return service.Subject{
		ID:   s.Path,
		Name: s.Name,
		Fields: map[string]string{
			service.FieldDescription: s.Description,
			service.FieldWhenToUse:   s.WhenToUse,
		},
	}
}

type Library struct {
	Roots  []string `json:"roots"`
	Skills []Skill  `json:"skills"`
}

func (l *Library) Subjects() []service.Subject {
	subjects := make([]service.Subject, len(l.Skills))
	for i, s := range l.Skills {
		subjects[i] = s.Subject()
	}
	return subjects
}
