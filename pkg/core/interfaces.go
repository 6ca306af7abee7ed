package core

// Logger interface for renderer logging
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Sampler provides random numbers for stratified jitter, importance sampling and
// density noise. Can be swapped out for deterministic testing.
type Sampler interface {
	Get1D() float64
	GetNormal() float64
}
