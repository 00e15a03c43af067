package adr

import "log"

// A StepLogger records named metric values for the
// current algorithm iteration.
type StepLogger interface {
	AddValue(name string, value float64)
}

// A PrintLogger is a StepLogger which writes values
// through the standard log package.
type PrintLogger struct {
	// Prefix is prepended to every value name.
	Prefix string
}

// AddValue logs a single metric value.
func (p *PrintLogger) AddValue(name string, value float64) {
	log.Printf("%s%s=%f", p.Prefix, name, value)
}
