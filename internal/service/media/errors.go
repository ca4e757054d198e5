package media

import "fmt"

// Step names a stage of the media pipeline.
type Step string

const (
	StepResolveURL Step = "resolve_url"
	StepFetch      Step = "fetch"
	StepUpload     Step = "upload"
)

// StepError reports which stage of the pipeline failed.
type StepError struct {
	Step    Step
	MediaID string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("media %s: %s failed: %v", e.MediaID, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
