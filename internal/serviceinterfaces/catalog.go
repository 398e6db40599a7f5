// Package serviceinterfaces declares contracts for external collaborators the
// engine consumes but does not own.
package serviceinterfaces

import (
	"context"

	"studyrec/internal/models"
)

// CourseCatalog looks up courses in the program catalog
type CourseCatalog interface {
	// GetCourseByID returns the course, or nil when it does not exist
	GetCourseByID(ctx context.Context, programID, courseID string) (*models.Course, error)
}

// ResourcePool supplies the learning resources available for a course
type ResourcePool interface {
	// GetResourcesForCourse returns the resource pool for a course, in catalog order
	GetResourcesForCourse(ctx context.Context, courseID string) ([]models.Resource, error)
}
