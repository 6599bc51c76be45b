package services

import (
	"context"

	awspkg "github.com/bmr-suspension/storefront-backend/pkg/aws"
)

type noopMetrics struct{}

func (noopMetrics) RecordCount(context.Context, string, map[string]string) error { return nil }

func (noopMetrics) RecordValue(context.Context, string, float64, map[string]string) error {
	return nil
}

func orNoopMetrics(m awspkg.MetricsRecorder) awspkg.MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
