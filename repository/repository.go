package repository

import (
	"context"
	"errors"

	"imageresize/models"
)

var ErrRunNotFound = errors.New("run not found")

type Repository interface {
	SaveRun(ctx context.Context, run *models.RunResult) error
	GetRun(ctx context.Context, runID string) (*models.RunResult, error)
}
