package controllers

import (
	"net/http"

	"academianet/services"

	"github.com/gin-gonic/gin"
)

// CatalogController serves one paged catalog table, such as the imported SNIES
// institutions or the academic programs.
type CatalogController struct {
	svc *services.CatalogService
}

func NewCatalogController(svc *services.CatalogService) *CatalogController {
	return &CatalogController{svc: svc}
}

// List handles GET on the catalog route. Query parameters: limit, nextToken
// and one per filterable attribute or alias.
func (ctl *CatalogController) List(c *gin.Context) {
	catalog := ctl.svc.Catalog()
	q := services.CatalogQuery{
		Limit:     c.Query("limit"),
		NextToken: c.Query("nextToken"),
		Filters:   map[string]string{},
	}
	for _, name := range catalog.Params() {
		if v, ok := c.GetQuery(name); ok {
			q.Filters[name] = v
		}
	}

	page, err := ctl.svc.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, err, "Error interno del servidor")
		return
	}

	body := gin.H{
		"items":      page.Items,
		"count":      page.Count,
		"filters":    page.Filters,
		catalog.Name: page.Items,
	}
	if page.NextToken != "" {
		body["nextToken"] = page.NextToken
	}
	c.JSON(http.StatusOK, body)
}
