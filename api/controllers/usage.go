package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/wdir-license-backend/api/responses"
	"github.com/angelmondragon/wdir-license-backend/api/validators"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
)

type usageReporter interface {
	ReportUsage(ctx context.Context, email, period string, count int) (*models.UsageStat, error)
}

type usageReportRequest struct {
	Email       string `json:"email" validate:"required,max=320"`
	Period      string `json:"period" validate:"required,len=7"`
	ReportCount *int   `json:"report_count" validate:"required,min=0"`
}

// UsageReport records the monthly report count an app submits. Later
// reports for the same period replace earlier ones.
func UsageReport(svc usageReporter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage service unavailable"))
			return
		}

		var body usageReportRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stat, err := svc.ReportUsage(r.Context(), body.Email, body.Period, *body.ReportCount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, usageResponseFromModel(stat))
	}
}
