// Package observability provides metrics and instrumentation utilities.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys
const (
	attrMethod   = "method"
	attrPath     = "path"
	attrStatus   = "status"
	attrPipeline = "pipeline"
	attrStep     = "step"
	attrResult   = "result"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	// Normalize paths with IDs to reduce cardinality
	// /v1/pipelines/release/runs/abc123 -> /v1/pipelines/{name}/runs/{runId}
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func pipelineAttr(name string) attribute.KeyValue {
	return attribute.String(attrPipeline, name)
}

func stepAttr(name string) attribute.KeyValue {
	return attribute.String(attrStep, name)
}

func resultAttr(result string) attribute.KeyValue {
	return attribute.String(attrResult, result)
}

// normalizePath replaces dynamic path segments with placeholders.
func normalizePath(path string) string {
	const prefix = "/v1/pipelines/"
	if !strings.HasPrefix(path, prefix) || len(path) == len(prefix) {
		return path
	}

	rest := strings.SplitN(path[len(prefix):], "/", 3)
	switch len(rest) {
	case 1:
		return prefix + "{name}"
	case 2:
		return prefix + "{name}/" + rest[1]
	default:
		return prefix + "{name}/" + rest[1] + "/{runId}"
	}
}

// WithPipeline returns a metric option with the pipeline attribute.
func WithPipeline(name string) metric.MeasurementOption {
	return metric.WithAttributes(pipelineAttr(name))
}

// WithStep returns a metric option with the step attribute.
func WithStep(name string) metric.MeasurementOption {
	return metric.WithAttributes(stepAttr(name))
}
