package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"facc/audit"
	"facc/store"
	"facc/utils"
)

// Catalog describes one of the reference lists that can be listed and bulk
// imported from spreadsheet rows.
type Catalog struct {
	Path       string // URL segment under /api and /api/import
	Collection string
	Entity     string
	listError  string
	importName string // plural used in client messages
	parseRow   func(row importRow) (map[string]any, string)
}

// Catalogs are the importable reference lists.
var Catalogs = []Catalog{
	{
		Path: "providers", Collection: store.Providers, Entity: audit.EntityProvider,
		listError: "Error al obtener proveedores", importName: "proveedores",
		parseRow: func(row importRow) (map[string]any, string) {
			name := row.get("Nombre")
			if name == "" {
				return nil, "Falta el nombre del proveedor"
			}
			item := map[string]any{"name": name}
			if ruc := row.get("RUC", "Ruc"); ruc != "" {
				item["ruc"] = ruc
			}
			return item, ""
		},
	},
	{
		Path: "program-models", Collection: store.ProgramModels, Entity: audit.EntityProgramModel,
		listError: "Error al obtener modelos de programa", importName: "modelos",
		parseRow: namedRow("Falta el nombre del modelo"),
	},
	{
		Path: "communities", Collection: store.Communities, Entity: audit.EntityCommunity,
		listError: "Error al obtener comunidades", importName: "comunidades",
		parseRow: namedRow("Falta el nombre de la comunidad"),
	},
	{
		Path: "account-codes", Collection: store.AccountCodes, Entity: audit.EntityAccountCode,
		listError: "Error al obtener códigos contables", importName: "códigos",
		parseRow: func(row importRow) (map[string]any, string) {
			code := row.get("Código", "Codigo")
			if code == "" {
				code = row.first()
			}
			if code == "" {
				return nil, "Código no válido"
			}
			return map[string]any{"code": code, "description": row.getOr(code, "Descripción", "Descripcion")}, ""
		},
	},
	{
		Path: "account-chart", Collection: store.AccountChart, Entity: audit.EntityAccountChart,
		listError: "Error al obtener plan de cuentas", importName: "cuentas",
		parseRow: func(row importRow) (map[string]any, string) {
			account := row.get("Cuenta")
			if account == "" {
				account = row.first()
			}
			if account == "" {
				return nil, "Cuenta no válida"
			}
			return map[string]any{"account": account, "description": row.getOr(account, "Descripción", "Descripcion")}, ""
		},
	},
}

func namedRow(missing string) func(importRow) (map[string]any, string) {
	return func(row importRow) (map[string]any, string) {
		name := row.get("Nombre")
		if name == "" {
			return nil, missing
		}
		return map[string]any{"name": name}, ""
	}
}

// importRow is a spreadsheet row as parsed by the client, with the column
// order preserved.
type importRow struct {
	keys   []string
	values map[string]string
}

func (r *importRow) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("row must be an object")
	}

	r.values = map[string]string{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		r.keys = append(r.keys, key)
		r.values[key] = cellString(v)
	}
	_, err = dec.Token()
	return err
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func (r importRow) get(keys ...string) string {
	for _, k := range keys {
		if v := r.values[k]; v != "" {
			return v
		}
	}
	return ""
}

func (r importRow) getOr(fallback string, keys ...string) string {
	if v := r.get(keys...); v != "" {
		return v
	}
	return fallback
}

func (r importRow) first() string {
	if len(r.keys) == 0 {
		return ""
	}
	return r.values[r.keys[0]]
}

// ListCatalog returns every element of a catalog
func (ctl *Controller) ListCatalog(cat Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := store.Collection(c.Request.Context(), ctl.store, cat.Collection)
		if err != nil {
			respondError(c, err, cat.listError)
			return
		}
		if items == nil {
			items = []json.RawMessage{}
		}
		c.JSON(http.StatusOK, items)
	}
}

// ImportCatalog appends the rows of {data: [...]} to a catalog. Every row is
// validated first; any invalid row rejects the whole import.
func (ctl *Controller) ImportCatalog(cat Catalog) gin.HandlerFunc {
	failed := "Error al importar " + cat.importName
	return func(c *gin.Context) {
		var body struct {
			Data []importRow `json:"data" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": failed, "details": []string{"El cuerpo debe contener data: [filas]"}})
			return
		}

		items, err := parseImport(cat, body.Data, currentUserIDPtr(c))
		if err != nil {
			respondError(c, err, failed)
			return
		}

		ctx := c.Request.Context()
		created, err := store.AddToCollection(ctx, ctl.store, cat.Collection, items)
		if err != nil {
			respondError(c, err, failed)
			return
		}

		ctl.recorder.Record(ctx, actor(c), audit.Event{
			ActionType: audit.ActionImport,
			EntityType: cat.Entity,
			NewValues:  gin.H{"count": len(created)},
		})
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": fmt.Sprintf("Se importaron %d %s", len(created), cat.importName),
			"count":   len(created),
		})
	}
}

// parseImport validates rows and turns them into catalog items. Errors name
// the 1-based row: "Fila N: ...".
func parseImport(cat Catalog, rows []importRow, createdBy *int64) ([]map[string]any, error) {
	var details []string
	items := make([]map[string]any, 0, len(rows))
	for i, row := range rows {
		item, problem := cat.parseRow(row)
		if problem != "" {
			details = append(details, fmt.Sprintf("Fila %d: %s", i+1, problem))
			continue
		}
		if createdBy != nil {
			item["created_by"] = *createdBy
		}
		items = append(items, item)
	}
	if len(details) > 0 {
		return nil, utils.BadRequest("Error al importar "+cat.importName, details...)
	}
	return items, nil
}
