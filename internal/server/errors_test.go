package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/tjfontaine/sidebar-gate/internal/adapters/host/missive"
	"github.com/tjfontaine/sidebar-gate/internal/analysis"
	"github.com/tjfontaine/sidebar-gate/internal/api/openai"
	"github.com/tjfontaine/sidebar-gate/internal/core/domain"
)

func TestClassify(t *testing.T) {
	cancelled := domain.NewAccessDenied(
		[]domain.CheckResult{domain.Fail(domain.CheckTenant, "tenant verification cancelled: context canceled")},
		[]error{&domain.TenantUnverifiedError{Reason: "tenant verification cancelled: context canceled", Err: context.Canceled}},
	)

	tests := []struct {
		name     string
		err      error
		status   int
		wantType string
	}{
		{"cancelled verification", cancelled, http.StatusForbidden, string(domain.ErrorTypeTenantUnverified)},
		{"unknown preset", fmt.Errorf("lookup: %w", analysis.ErrUnknownPreset), http.StatusBadRequest, errorTypeInvalidRequest},
		{"deadline", fmt.Errorf("analysis failed: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, errorTypeTimeout},
		{"oversized host answer", fmt.Errorf("load conversation: %w", missive.ErrResponseTooLarge), http.StatusBadGateway, errorTypeUpstream},
		{"oversized model answer", fmt.Errorf("analysis failed: %w", openai.ErrResponseTooLarge), http.StatusBadGateway, errorTypeUpstream},
		{"other", errors.New("boom"), http.StatusInternalServerError, errorTypeServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, detail := classify(tt.err)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if detail.Type != tt.wantType {
				t.Errorf("type = %q, want %q", detail.Type, tt.wantType)
			}
		})
	}
}
