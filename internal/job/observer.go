package job

// Observer receives lifecycle events of a run. It is used for telemetry only
// and never affects control flow.
type Observer interface {
	JobStarted(target string)
	JobSucceeded(target string, seconds float64)
	JobFailed(target string, seconds float64)
}

type nopObserver struct{}

func (nopObserver) JobStarted(string)            {}
func (nopObserver) JobSucceeded(string, float64) {}
func (nopObserver) JobFailed(string, float64)    {}
