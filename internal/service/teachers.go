package service

import (
	"context"
	"fmt"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/Vinsen2024/lead-funnel-back/internal/repository"
)

type TeacherHome struct {
	Teacher TeacherCard
	Broker  *domain.BrokerCard
	Modules []ModuleCard
}

type TeacherCard struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Avatar      string              `json:"avatar,omitempty"`
	Title       string              `json:"title,omitempty"`
	Bio         string              `json:"bio,omitempty"`
	ContactInfo *domain.ContactInfo `json:"contact_info,omitempty"`
}

type ModuleCard struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags"`
}

type TeachersService struct {
	catalog repository.CatalogRepository
}

func NewTeachersService(catalog repository.CatalogRepository) *TeachersService {
	return &TeachersService{catalog: catalog}
}

// Home assembles the teacher landing page. When a broker is attributed
// the teacher's own contact info is withheld so the broker stays the
// point of contact.
func (s *TeachersService) Home(ctx context.Context, teacherID, brokerID string) (TeacherHome, error) {
	teacher, err := s.catalog.GetTeacher(ctx, teacherID)
	if err != nil {
		return TeacherHome{}, fmt.Errorf("teacher %s: %w", teacherID, err)
	}
	if !teacher.IsActive {
		return TeacherHome{}, fmt.Errorf("teacher %s: %w", teacherID, repository.ErrNotFound)
	}

	modules, err := s.catalog.GetActiveModules(ctx, teacherID)
	if err != nil {
		return TeacherHome{}, fmt.Errorf("load modules: %w", err)
	}

	home := TeacherHome{
		Teacher: TeacherCard{
			ID:     teacher.ID,
			Name:   teacher.Name,
			Avatar: teacher.Avatar,
			Title:  teacher.Title,
			Bio:    teacher.Bio,
		},
		Modules: make([]ModuleCard, 0, len(modules)),
	}

	if brokerID != "" {
		broker, err := s.catalog.GetBroker(ctx, brokerID)
		if err == nil && broker.IsActive {
			home.Broker = broker.Card()
		}
	}
	if home.Broker == nil {
		contact := teacher.ContactInfo
		home.Teacher.ContactInfo = &contact
	}

	for _, module := range modules {
		tags := module.Tags
		if tags == nil {
			tags = []string{}
		}
		home.Modules = append(home.Modules, ModuleCard{
			ID:          module.ID,
			Title:       module.Title,
			Description: module.Description,
			Tags:        tags,
		})
	}
	return home, nil
}
