package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"vocalsplit/internal/jobs"
	"vocalsplit/internal/services"
)

const submitStage = "submit"

// Scheduler is the part of the worker pool JobService needs.
type Scheduler interface {
	Submit(id string) error
}

// JobService creates, schedules, and reports jobs for the HTTP layer.
type JobService struct {
	registry  *jobs.Registry
	scheduler Scheduler
	validate  *validator.Validate
	newID     func() string
	now       func() time.Time
}

// NewJobID returns a fresh job identifier.
func NewJobID() string {
	return uuid.NewString()
}

// NewJobService constructs a JobService.
func NewJobService(registry *jobs.Registry, scheduler Scheduler) *JobService {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return &JobService{
		registry:  registry,
		scheduler: scheduler,
		validate:  validate,
		newID:     NewJobID,
		now:       time.Now,
	}
}

// Submit validates req, records the job, and queues it. It returns as soon
// as the job is queued.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	req.JobID = strings.TrimSpace(req.JobID)
	req.InputPath = strings.TrimSpace(req.InputPath)
	req.OriginalFilename = strings.TrimSpace(req.OriginalFilename)
	req.MediaKind = strings.ToLower(strings.TrimSpace(req.MediaKind))

	if err := s.validate.StructCtx(ctx, req); err != nil {
		return SubmitResult{}, services.Wrap(services.ErrValidation, submitStage, "validate request", validationMessage(err), nil)
	}
	info, err := os.Stat(req.InputPath)
	if err != nil {
		return SubmitResult{}, services.Wrap(services.ErrValidation, submitStage, "validate request", "input file is not readable", err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return SubmitResult{}, services.Wrap(services.ErrValidation, submitStage, "validate request", "input must be a non-empty regular file", nil)
	}
	kind, _ := jobs.ParseMediaKind(req.MediaKind)

	id := req.JobID
	if id == "" {
		id = s.newID()
	}
	job, err := s.registry.Create(id, req.OriginalFilename, kind, req.InputPath)
	if err != nil {
		if errors.Is(err, jobs.ErrDuplicateID) {
			return SubmitResult{}, services.Wrap(services.ErrValidation, submitStage, "create job", "job id already exists", err)
		}
		return SubmitResult{}, fmt.Errorf("create job: %w", err)
	}

	if err := s.scheduler.Submit(id); err != nil {
		_, _ = s.registry.Update(id, func(j *jobs.Job) error {
			j.Fail("job could not be scheduled: " + err.Error())
			return nil
		})
		return SubmitResult{}, services.Wrap(services.ErrTransient, submitStage, "schedule job", "daemon is not accepting jobs", err)
	}
	return SubmitResult{JobID: job.ID, Status: string(job.Status)}, nil
}

// Status returns the polling payload for id. Unknown ids match
// services.ErrNotFound.
func (s *JobService) Status(_ context.Context, id string) (JobStatus, error) {
	job, err := s.registry.Get(strings.TrimSpace(id))
	if err != nil {
		return JobStatus{}, err
	}
	return StatusFromJob(job), nil
}

// Describe returns the full snapshot for id.
func (s *JobService) Describe(_ context.Context, id string) (JobView, error) {
	job, err := s.registry.Get(strings.TrimSpace(id))
	if err != nil {
		return JobView{}, err
	}
	return FromJob(job, s.now()), nil
}

// Lookup returns the raw record for id.
func (s *JobService) Lookup(id string) (jobs.Job, error) {
	return s.registry.Get(strings.TrimSpace(id))
}

// List returns every job, oldest first, with per-status counts.
func (s *JobService) List(context.Context) JobListResponse {
	return JobListResponse{
		Jobs:   FromJobs(s.registry.List(), s.now()),
		Counts: CountsByStatus(s.registry.Counts()),
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is not a valid %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
