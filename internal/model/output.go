package model

import "time"

// Output kinds.
const (
	OutputSeries    = "series"
	OutputVariables = "variables"
)

// Point is a single sample of a time series.
type Point struct {
	Time  time.Time `json:"t"`
	Value float64   `json:"v"`
}

// Series is a named time series with optional labels.
type Series struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Points []Point           `json:"points"`
}

// Variable is one selectable value of a dashboard variable.
type Variable struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

// Output is one element of a function response: either a series or a list
// of variable values.
type Output struct {
	Kind      string     `json:"kind"`
	Series    *Series    `json:"series,omitempty"`
	Variables []Variable `json:"variables,omitempty"`
}

// SeriesOutput wraps s as an Output.
func SeriesOutput(s Series) Output {
	return Output{Kind: OutputSeries, Series: &s}
}

// VariablesOutput wraps vs as an Output.
func VariablesOutput(vs []Variable) Output {
	return Output{Kind: OutputVariables, Variables: vs}
}
