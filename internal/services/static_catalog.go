package services

import (
	"context"
	"os"

	"gopkg.in/yaml.v3"

	"studyrec/internal/models"
	contextutils "studyrec/internal/utils"
)

// StaticCatalog serves courses and resources from an in-memory snapshot,
// typically loaded from a YAML catalog file. It backs both collaborator
// interfaces for deployments without a live catalog service.
type StaticCatalog struct {
	courses   []models.Course
	resources map[string][]models.Resource
}

// staticCatalogFile is the on-disk shape of a catalog snapshot
type staticCatalogFile struct {
	Courses   []models.Course              `yaml:"courses"`
	Resources map[string][]models.Resource `yaml:"resources"`
}

// NewStaticCatalog creates a catalog from an in-memory snapshot
func NewStaticCatalog(courses []models.Course, resources map[string][]models.Resource) *StaticCatalog {
	if resources == nil {
		resources = map[string][]models.Resource{}
	}
	return &StaticCatalog{courses: courses, resources: resources}
}

// LoadStaticCatalog reads a YAML catalog snapshot from disk
func LoadStaticCatalog(path string) (*StaticCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to read catalog file %s", path)
	}
	var file staticCatalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to parse catalog file %s", path)
	}
	return NewStaticCatalog(file.Courses, file.Resources), nil
}

// GetCourseByID returns the course matching both IDs, or a not-found error
func (c *StaticCatalog) GetCourseByID(_ context.Context, programID, courseID string) (*models.Course, error) {
	for i := range c.courses {
		if c.courses[i].ProgramID == programID && c.courses[i].ID == courseID {
			course := c.courses[i]
			return &course, nil
		}
	}
	return nil, contextutils.WrapErrorf(contextutils.ErrCourseNotFound, "course %s not found in program %s", courseID, programID)
}

// GetResourcesForCourse returns the course's resource pool in catalog order
func (c *StaticCatalog) GetResourcesForCourse(_ context.Context, courseID string) ([]models.Resource, error) {
	resources, ok := c.resources[courseID]
	if !ok || len(resources) == 0 {
		return nil, contextutils.WrapErrorf(contextutils.ErrResourcePoolEmpty, "no resources registered for course %s", courseID)
	}
	out := make([]models.Resource, len(resources))
	copy(out, resources)
	return out, nil
}
