package licenses

import (
	"strings"

	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	pkgpagination "github.com/angelmondragon/wdir-license-backend/pkg/pagination"
)

type ListParams struct {
	pkgpagination.Params
	Search      string
	FlaggedOnly bool
}

type ListResult struct {
	Items  []models.License
	Cursor string
}

type listQuery struct {
	limit       int
	cursor      *pkgpagination.Cursor
	search      string
	flaggedOnly bool
}

func normalizeSearch(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	return strings.NewReplacer("%", "", "_", "").Replace(v)
}
